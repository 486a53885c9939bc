package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/roadmap/internal/graph"
)

func newNormalizeCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "normalize <handle>...",
		Short: "Print the canonical form of handle ids",
		Long: `Map anchor ids in any legacy spelling (right, right-target,
bottom-source-source, ...) to the canonical id for --role.`,
		Args: cobra.MinimumNArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			r := graph.ParseRole(role)
			for _, h := range args {
				fmt.Fprintln(cmd.OutOrStdout(), graph.NormalizeHandle(h, r))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "source", "source or target")
	return cmd
}
