package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/roadmap/internal/codec"
	"github.com/dusk-indust/roadmap/internal/graph"
	"github.com/dusk-indust/roadmap/internal/mcptools"
	"github.com/dusk-indust/roadmap/internal/session"
)

func newMCPCmd(a *app) *cobra.Command {
	var (
		roadmapID int64
		title     string
		readOnly  bool
		httpAddr  string
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose an editing session as MCP tools",
		Long: `Open an editing session and serve it as MCP tools over stdio, or over
streamable HTTP with --http.

With --roadmap the session is hydrated from the server and saves update
that roadmap. Without it the session starts empty and the first save
creates a new roadmap titled --title.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coord := a.coordinator()
			meta := codec.Roadmap{Title: title}
			g := graph.Graph{Nodes: []graph.Node{}, Edges: []graph.Edge{}}
			var id *int64
			if roadmapID > 0 {
				id = &roadmapID
				loaded, lg, rep, err := coord.Load(ctx, roadmapID)
				if err != nil {
					return fmt.Errorf("load roadmap %d: %w", roadmapID, err)
				}
				if !rep.Clean() {
					a.logger.Warn("roadmap repaired on load", "roadmap", roadmapID, "problems", len(rep.Problems))
				}
				meta = loaded
				if cmd.Flags().Changed("title") {
					meta.Title = title
				}
				if lg.Nodes != nil {
					g.Nodes = lg.Nodes
				}
				if lg.Edges != nil {
					g.Edges = lg.Edges
				}
			}

			sess := session.New(session.Options{
				InitialNodes:   g.Nodes,
				InitialEdges:   g.Edges,
				IsEditing:      !readOnly,
				ReadOnly:       readOnly || a.cfg.Editor.ReadOnly,
				DebounceWindow: a.cfg.Editor.DebounceWindow,
				OnSave:         session.CoordinatorSaver(coord, id, meta),
				OnInternalUpdate: func(g graph.Graph) {
					a.logger.Debug("graph settled", "nodes", len(g.Nodes), "edges", len(g.Edges))
				},
				Logger:       a.logger,
				StoreOptions: a.storeOptions(),
			})
			defer sess.Close()
			sess.Store().SetConnectionType(graph.ConnectionType(a.cfg.Editor.ConnectionType))

			server := mcptools.NewEditorMCPServer(mcptools.NewEditorService(sess, a.logger))
			if httpAddr != "" {
				a.logger.Info("mcp server listening", "addr", httpAddr)
				return mcptools.RunHTTP(ctx, server, httpAddr)
			}
			return mcptools.RunStdio(ctx, server)
		},
	}
	cmd.Flags().Int64Var(&roadmapID, "roadmap", 0, "roadmap id to load and update")
	cmd.Flags().StringVar(&title, "title", "Untitled roadmap", "title used when the first save creates a roadmap")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "disable editing tools")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	return cmd
}
