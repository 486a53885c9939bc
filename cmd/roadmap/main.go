// Command roadmap serves, edits and exports course roadmaps.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/roadmap/internal/api"
	"github.com/dusk-indust/roadmap/internal/config"
	"github.com/dusk-indust/roadmap/internal/graph"
	"github.com/dusk-indust/roadmap/internal/logging"
	"github.com/dusk-indust/roadmap/internal/persist"
)

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	dir        string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "roadmap",
		Short: "Course roadmap editor engine",
		Long: `roadmap edits prerequisite graphs of courses and persists them to a
roadmap server.

Commands:
  serve      Run the reference roadmap server
  mcp        Expose an editing session as MCP tools
  push       Save a graph file to the server
  export     Export a saved roadmap as JSON, Mermaid or a study plan
  diagram    Print a saved roadmap as a Mermaid diagram
  normalize  Print the canonical form of a handle id`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: roadmap.yml in --dir)")
	root.PersistentFlags().StringVar(&a.dir, "dir", ".", "directory searched for roadmap.yml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "text or json (overrides config)")

	root.AddCommand(
		newServeCmd(a),
		newMCPCmd(a),
		newPushCmd(a),
		newExportCmd(a),
		newDiagramCmd(a),
		newNormalizeCmd(),
		newVersionCmd(),
	)
	return root
}

// init loads the config and builds the logger. Logs go to stderr so stdout
// stays clean for exports and the MCP stdio transport.
func (a *app) init(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load(a.dir)
	}
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		a.cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		a.cfg.Logging.Format = a.logFormat
	}
	a.logger = logging.New(a.cfg.Logging.Level, a.cfg.Logging.Format, cmd.ErrOrStderr())
	cmd.SetContext(logging.WithLogger(cmd.Context(), a.logger))
	return nil
}

// client builds the HTTP client for the configured roadmap server.
func (a *app) client() *api.HTTPClient {
	opts := []api.ClientOption{api.WithTimeout(a.cfg.API.Timeout)}
	for k, v := range a.cfg.API.Headers {
		opts = append(opts, api.WithHeader(k, v))
	}
	return api.NewHTTPClient(a.cfg.API.BaseURL, opts...)
}

// coordinator builds a save coordinator from the config.
func (a *app) coordinator(extra ...persist.Option) *persist.Coordinator {
	opts := []persist.Option{
		persist.WithBatchSize(a.cfg.Save.BatchSize),
		persist.WithBatchConcurrency(a.cfg.Save.BatchConcurrency),
		persist.WithLogger(a.logger),
	}
	return persist.New(a.client(), append(opts, extra...)...)
}

// storeOptions translates the editor config into graph store options.
func (a *app) storeOptions() []graph.Option {
	ed := a.cfg.Editor
	v := graph.NewValidator()
	if ed.EdgeType != "" {
		v.EdgeType = ed.EdgeType
	}
	if ed.EdgeStroke != "" {
		v.Style.Stroke = ed.EdgeStroke
	}
	if ed.EdgeWidth > 0 {
		v.Style.StrokeWidth = ed.EdgeWidth
	}
	v.Logger = a.logger
	return []graph.Option{
		graph.WithValidator(v),
		graph.WithHistoryLimit(ed.HistoryLimit),
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "roadmap version %s\n", version)
		},
	}
}
