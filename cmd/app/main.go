package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/starford/notebridge/internal"
	"github.com/starford/notebridge/internal/convert"
	"github.com/starford/notebridge/internal/noteservice"
	"github.com/starford/notebridge/internal/report"
	"github.com/starford/notebridge/internal/transfer"
	pkgconfig "github.com/starford/notebridge/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}
	if cmd.Bool("mcp") {
		return internal.ServeMCP(ctx, opts...)
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func watch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Watch(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func export(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	req := noteservice.ExportRequest{
		IDs:      cmd.Args().Slice(),
		Folder:   cmd.String("folder"),
		Format:   convert.Format(cmd.String("format")),
		JSONMode: convert.JSONMode(cmd.String("json-mode")),
		DryRun:   cmd.Bool("dry-run"),
	}
	if cmd.IsSet("frontmatter") {
		v := cmd.Bool("frontmatter")
		req.Frontmatter = &v
	}
	if cmd.IsSet("attachments") {
		v := cmd.Bool("attachments")
		req.CopyAttachments = &v
	}

	res, err := internal.Export(ctx, req, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	return finish("export", res)
}

func importCmd(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	strategy := transfer.Strategy(cmd.String("strategy"))
	if strategy != "" && !strategy.Valid() {
		return fmt.Errorf("unknown strategy %q", strategy)
	}
	req := noteservice.ImportRequest{
		Patterns:      cmd.Args().Slice(),
		Folder:        cmd.String("folder"),
		DefaultFolder: cmd.String("default-folder"),
		Strategy:      strategy,
		DryRun:        cmd.Bool("dry-run"),
	}
	opts := []internal.Option{internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr)}
	if fd := os.Stdin.Fd(); isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		opts = append(opts, internal.WithResolver(promptResolver(bufio.NewReader(os.Stdin))))
	}

	res, err := internal.Import(ctx, req, opts...)
	if err != nil {
		return err
	}
	return finish("import", res)
}

// promptResolver asks on the terminal how to settle each conflict. An
// interrupted prompt leaves the conflict unresolved.
func promptResolver(in *bufio.Reader) transfer.Resolver {
	type answer struct {
		line string
		err  error
	}
	return func(ctx context.Context, c transfer.Conflict) transfer.Strategy {
		fmt.Fprintf(os.Stderr, "%s: %q already exists in folder %q (note %s)\n[s]kip, [r]eplace, [d]uplicate? ",
			c.Source, c.Title, c.Folder, c.ExistingID)
		ch := make(chan answer, 1)
		go func() {
			line, err := in.ReadString('\n')
			ch <- answer{line, err}
		}()
		var a answer
		select {
		case a = <-ch:
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			return transfer.StrategyAsk
		}
		if a.err != nil {
			return transfer.StrategyAsk
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "s", "skip":
			return transfer.StrategySkip
		case "r", "replace":
			return transfer.StrategyReplace
		case "d", "duplicate":
			return transfer.StrategyDuplicate
		}
		return transfer.StrategyAsk
	}
}

func finish(direction string, res *transfer.Result) error {
	if err := report.Render(os.Stdout, direction, res); err != nil {
		return err
	}
	if res.Cancelled {
		return fmt.Errorf("%s: interrupted after %d of %d item(s)", direction, res.Completed(), len(res.Items))
	}
	if n := len(res.Failures) + res.Unresolved(); n > 0 {
		return fmt.Errorf("%s: %d item(s) not transferred", direction, n)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "notebridge",
		Usage:   "Export notes to Markdown or JSON files and import them back",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the import inbox watcher",
				Action: serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "mcp", Usage: "Serve MCP over stdio instead of HTTP"},
				},
			},
			{
				Name:   "watch",
				Usage:  "Import files dropped into the import directory",
				Action: watch,
			},
			{
				Name:      "export",
				Usage:     "Export notes into the export directory",
				ArgsUsage: "[note-id...]",
				Action:    export,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "folder", Usage: "Export every note in this folder when no ids are given"},
					&cli.StringFlag{Name: "format", Usage: "markdown or json"},
					&cli.StringFlag{Name: "json-mode", Usage: "minimal or full"},
					&cli.BoolFlag{Name: "frontmatter", Usage: "Write a YAML header into Markdown files"},
					&cli.BoolFlag{Name: "attachments", Usage: "Copy attachment payloads next to the notes"},
					&cli.BoolFlag{Name: "dry-run", Usage: "Report paths without writing"},
				},
			},
			{
				Name:      "import",
				Usage:     "Import files from the import directory",
				ArgsUsage: "[glob...]",
				Action:    importCmd,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "folder", Usage: "Put every note into this folder"},
					&cli.StringFlag{Name: "default-folder", Usage: "Folder for notes that carry none"},
					&cli.StringFlag{Name: "strategy", Usage: "Conflict strategy: skip, replace, duplicate or ask"},
					&cli.BoolFlag{Name: "dry-run", Usage: "Detect conflicts without creating notes"},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
