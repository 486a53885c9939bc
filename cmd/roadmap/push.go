package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/roadmap/internal/export"
	"github.com/dusk-indust/roadmap/internal/persist"
)

func newPushCmd(a *app) *cobra.Command {
	var (
		roadmapID int64
		title     string
	)
	cmd := &cobra.Command{
		Use:   "push <graph.json>",
		Short: "Save a graph file to the roadmap server",
		Long: `Save the nodes and edges in a JSON file (an export document or a bare
{"nodes": [...], "edges": [...]} object) to the roadmap server.

Without --roadmap a new roadmap is created. Progress of each write is
printed to stderr; the roadmap id is printed to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			meta, g, err := export.ReadGraph(f)
			if err != nil {
				return err
			}
			if title != "" {
				meta.Title = title
			}
			if meta.Title == "" {
				meta.Title = "Untitled roadmap"
			}

			errOut := cmd.ErrOrStderr()
			coord := a.coordinator(persist.WithProgress(func(ev persist.ProgressEvent) {
				if ev.Status != persist.ProgressWorking {
					fmt.Fprintln(errOut, persist.FormatProgress(ev))
				}
			}))

			req := persist.SaveRequest{Metadata: meta, Graph: g}
			if roadmapID > 0 {
				req.RoadmapID = &roadmapID
			}
			res, err := coord.Save(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.RoadmapID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&roadmapID, "roadmap", 0, "update this roadmap instead of creating one")
	cmd.Flags().StringVar(&title, "title", "", "roadmap title (overrides the file)")
	return cmd
}
