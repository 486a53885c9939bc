package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/roadmap/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <roadmap-id>",
		Short: "Export a saved roadmap",
		Long: `Load a roadmap from the server and write it as JSON (default), as a
Mermaid diagram or as a Markdown study plan ordered by prerequisites.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return a.runExport(cmd, args[0], format, w)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json, mermaid or plan")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newDiagramCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diagram <roadmap-id>",
		Short: "Print a saved roadmap as a Mermaid diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExport(cmd, args[0], "mermaid", cmd.OutOrStdout())
		},
	}
}

func (a *app) runExport(cmd *cobra.Command, rawID, format string, w io.Writer) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid roadmap id %q", rawID)
	}

	meta, g, rep, err := a.coordinator().Load(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("load roadmap %d: %w", id, err)
	}
	if !rep.Clean() {
		a.logger.Warn("roadmap repaired on load", "roadmap", id, "problems", len(rep.Problems))
	}

	switch format {
	case "json":
		return export.WriteJSON(w, export.Build(meta, g, time.Now()))
	case "mermaid":
		_, err := io.WriteString(w, export.Mermaid(g))
		return err
	case "plan":
		return export.WritePlan(w, meta.Title, g)
	default:
		return fmt.Errorf("unknown format %q (use json, mermaid or plan)", format)
	}
}
