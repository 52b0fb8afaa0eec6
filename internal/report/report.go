// Package report renders transfer results as terminal tables.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/starford/notebridge/internal/transfer"
)

// Render writes one row per item followed by a summary line.
func Render(w io.Writer, direction string, res *transfer.Result) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Source", "State", "Detail"})

	for i, it := range res.Items {
		tw.AppendRow(table.Row{strconv.Itoa(i + 1), it.Source, it.State.String(), detail(it)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, WidthMax: 60},
	})

	if _, err := fmt.Fprintln(w, tw.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, Summary(direction, res))
	return err
}

// Summary is the one-line outcome of a batch.
func Summary(direction string, res *transfer.Result) string {
	s := fmt.Sprintf("%s: %d succeeded, %d skipped, %d failed",
		direction, res.Succeeded, len(res.Skipped), len(res.Failures))
	if n := res.Unresolved(); n > 0 {
		s += fmt.Sprintf(", %d unresolved", n)
	}
	if res.DryRun {
		s += " (dry run)"
	}
	if res.Cancelled {
		s += " (cancelled"
		if n := len(res.Items) - res.Completed(); n > 0 {
			s += fmt.Sprintf(", %d not started", n)
		}
		s += ")"
	}
	return s
}

func detail(it transfer.Item) string {
	switch it.State {
	case transfer.StatePending:
		return "not started"
	case transfer.StateSucceeded:
		if it.Path != "" {
			return it.Path
		}
		return it.ID
	case transfer.StateSkipped:
		return it.Reason
	case transfer.StateFailed, transfer.StateConflictUnresolved:
		if it.Err != nil {
			return it.Err.Error()
		}
	}
	return ""
}
