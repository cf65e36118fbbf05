package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/casekit/internal"
	"github.com/starford/casekit/internal/detector"
	"github.com/starford/casekit/internal/mcpserver"
	pkgconfig "github.com/starford/casekit/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

// openServices builds the components for one-shot commands. Logs go to
// stderr so that stdout carries only command output.
func openServices(cmd *cli.Command) (*internal.Services, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	svc, err := internal.NewServices(cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
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

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.ImportSeeds(ctx); err != nil {
		return err
	}
	return mcpserver.New(svc.Intel, svc.Search, svc.Metrics, version).ServeStdio()
}

func analyze(ctx context.Context, cmd *cli.Command) error {
	var (
		data []byte
		err  error
	)
	if path := cmd.Args().First(); path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read content: %w", err)
	}

	source := detector.Source(cmd.String("source"))
	switch source {
	case detector.SourceClipboard, detector.SourceDragDrop, detector.SourceFileUpload:
	default:
		return fmt.Errorf("unknown source %q", source)
	}

	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.ImportSeeds(ctx); err != nil {
		return err
	}

	if cmd.Bool("html") {
		return printJSON(svc.Intel.AnalyzeHTML(ctx, string(data), source))
	}
	return printJSON(svc.Intel.Analyze(ctx, string(data), source))
}

func reindex(ctx context.Context, cmd *cli.Command) error {
	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.Search.RebuildAll(ctx)
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	return printJSON(report)
}

func maintainPatterns(ctx context.Context, cmd *cli.Command) error {
	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.Patterns.Maintain(ctx)
	if err != nil {
		return fmt.Errorf("maintain patterns: %w", err)
	}
	return printJSON(report)
}

func importPatterns(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("seed file path is required")
	}

	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.Patterns.ImportSeedFile(ctx, path)
	if err != nil {
		return fmt.Errorf("import patterns: %w", err)
	}
	return printJSON(report)
}

func listPatterns(ctx context.Context, cmd *cli.Command) error {
	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	all, err := svc.Patterns.List(ctx)
	if err != nil {
		return fmt.Errorf("list patterns: %w", err)
	}
	return printJSON(all)
}

func main() {
	cmd := &cli.Command{
		Name:    "casekit",
		Usage:   "Content intelligence for support cases: classification, duplicate detection, learned categories and ranked search",
		Version: version,
		Action:  serve,
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
				Usage:  "Run the HTTP API, event stream and seed watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:      "analyze",
				Usage:     "Analyze a file (or stdin) and print the result as JSON",
				ArgsUsage: "[file]",
				Action:    analyze,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Usage: "clipboard, drag-drop or file-upload",
						Value: string(detector.SourceFileUpload),
					},
					&cli.BoolFlag{
						Name:  "html",
						Usage: "Treat the content as HTML",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the search index from stored records",
				Action: reindex,
			},
			{
				Name:  "patterns",
				Usage: "Manage learned content patterns",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "Print all patterns",
						Action: listPatterns,
					},
					{
						Name:   "maintain",
						Usage:  "Merge similar patterns, then remove low performers",
						Action: maintainPatterns,
					},
					{
						Name:      "import",
						Usage:     "Import a seed pattern file",
						ArgsUsage: "<file>",
						Action:    importPatterns,
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
