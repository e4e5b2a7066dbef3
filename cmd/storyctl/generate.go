package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/config"
	"github.com/AvishManiar21/user-story-automation/internal/document"
	"github.com/AvishManiar21/user-story-automation/internal/logging"
	"github.com/AvishManiar21/user-story-automation/internal/pipeline"
	"github.com/AvishManiar21/user-story-automation/internal/services"
	"github.com/AvishManiar21/user-story-automation/internal/validator"
	"github.com/AvishManiar21/user-story-automation/internal/watch"
)

var (
	generateModel string
	generateJSON  bool
	watchDir      string
)

var generateCmd = &cobra.Command{
	Use:   "generate <document>",
	Short: "Generate user stories from a requirements document",
	Long: `Run the full pipeline over a .docx, .doc, .txt or .md document.

Validation reports are printed to stderr and the combined requirements,
epics and test cases are saved to the configured output directory.

Examples:
  storyctl generate requirements.docx
  storyctl generate --model llama3.1 --json notes.md > stories.json`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process documents as they appear in a folder",
	Long: `Watch a folder and run the pipeline over every supported document that
is created or changed. Documents already present are processed at start.

Examples:
  storyctl watch --dir inbox`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	generateCmd.Flags().StringVar(&generateModel, "model", "", "model override for this run")
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "print stories as JSON on stdout")
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "folder to watch (default from config)")
	watchCmd.Flags().StringVar(&generateModel, "model", "", "model override for every run")
}

// app bundles what the local commands need.
type app struct {
	cfg     *config.Config
	reg     services.Registry
	logger  *zap.Logger
	reports io.Writer
}

func newApp(ctx context.Context, reports io.Writer) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logCfg.Format = "console"
	logCfg.Stderr = true
	lg, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := lg.Underlying()

	reg, err := services.Build(ctx, cfg, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing services: %w", err)
	}
	return &app{cfg: cfg, reg: reg, logger: logger, reports: reports}, nil
}

func (a *app) Close() {
	_ = a.reg.Close()
	_ = a.logger.Sync()
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.generate(ctx, args[0])
	if err != nil {
		return err
	}
	if generateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res.Stories)
	}
	printSummary(cmd.OutOrStdout(), res)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	dir := watchDir
	if dir == "" {
		dir = a.cfg.Watch.Dir
	}
	w := watch.New(dir, func(ctx context.Context, path string) error {
		res, err := a.generate(ctx, path)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), res)
		return nil
	}, watch.WithSettle(a.cfg.Watch.Settle), watch.WithLogger(a.logger))

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for documents (Ctrl+C to stop)\n", dir)
	return w.Run(ctx)
}

// generate runs the pipeline over one document and saves the result.
func (a *app) generate(ctx context.Context, path string) (*pipeline.Result, error) {
	text, err := document.ExtractText(path)
	if err != nil {
		return nil, err
	}
	p, err := a.reg.Pipeline(generateModel)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithDocument(ctx, filepath.Base(path))
	res, err := p.Process(ctx, text)
	if err != nil {
		return nil, err
	}

	printReports(a.reports, res.Validation)

	if saved, err := a.reg.Writer().Save(path, res.Requirements, res.Epics, res.TestCases); err != nil {
		a.logger.Warn("failed to save output", zap.String("document", path), zap.Error(err))
	} else {
		a.logger.Info("saved output", zap.String("file", saved))
	}
	return res, nil
}

func printReports(w io.Writer, v pipeline.Validation) {
	fmt.Fprint(w, validator.Render("Epic Validation", v.Epics))
	fmt.Fprint(w, validator.Render("Test Case Validation", v.TestCases))
	fmt.Fprint(w, validator.Render("Completeness", v.Completeness.Report))
	fmt.Fprint(w, validator.Render("Test Coverage", v.Coverage))
}

func printSummary(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "Run %s: %d user stories\n", res.RunID, len(res.Stories))
	for _, s := range res.Stories {
		fmt.Fprintf(w, "  %d. %s\n", s.ID, s.Title)
	}
	if res.Note != "" {
		fmt.Fprintln(w, res.Note)
	}
}
