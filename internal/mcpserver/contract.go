package mcpserver

// NoteFormatContract describes the note markup accepted by create_note and
// the file formats produced by export_notes and read by import_notes.
const NoteFormatContract = `# notebridge Note Formats

## Note markup

Notes are stored as an HTML fragment. create_note accepts this subset:

- Paragraphs: ` + "`<div>text</div>`" + `; an empty line is ` + "`<div><br></div>`" + `.
- Headings: ` + "`<h1>`" + ` to ` + "`<h3>`" + `. A leading ` + "`<h1>`" + ` becomes the title when no title is given.
- Lists: ` + "`<ul><li>..</li></ul>`" + ` and ` + "`<ol><li>..</li></ol>`" + `.
- Checklists: ` + "`<ul class=\"checklist\"><li data-checked=\"true\">done</li></ul>`" + `.
- Quotes: ` + "`<blockquote>`" + `; code blocks: ` + "`<pre>`" + `; tables: ` + "`<table><tr><td>`" + `.
- Inline: ` + "`<b>`, `<i>`, `<u>`, `<s>`, `<code>`, `<tt>`" + ` and links ` + "`<a href=\"target\">text</a>`" + `.

A link whose target is another note's id or title is an internal link and
shows up in that note's backlinks. Words starting with ` + "`#`" + ` are hashtags.

## Markdown files (.md, .markdown, .txt)

` + "```" + `markdown
---
title: "Weekly standup"
folder: "Work/2024"
hashtags: ["meeting"]
created: "2024-01-20T09:00:00Z"
---
Attendees: Alice, Bob. #meeting

- [ ] review the [design](design-doc)
- [x] update the roadmap
` + "```" + `

The header is optional. Without one, a leading ` + "`# Title`" + ` line or the
file name supplies the title.

## JSON files (.json)

` + "```" + `json
{"title": "Weekly standup", "content": "Attendees: Alice, Bob.", "folder": "Work/2024"}
` + "```" + `

` + "`title`" + ` must be a string. The full export mode adds ` + "`attachments`" + `,
` + "`hashtags`" + `, ` + "`internalLinks`" + ` and ` + "`markup`" + `; on import
` + "`markup`" + ` wins over ` + "`content`" + `.

## HTML files (.html, .htm)

The note markup above, starting with ` + "`<h1>title</h1>`" + `.

## Import conflicts

A file conflicts with a note that has the same title in the same folder.
Strategies: skip (default), replace, duplicate, ask. Nothing is asked over
MCP, so ask leaves conflicts unresolved.
`
