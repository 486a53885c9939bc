package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/roadmap/internal/api"
	"github.com/dusk-indust/roadmap/internal/repo"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr    string
		backend string
		path    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference roadmap server",
		Long: `Serve roadmap metadata, node and edge collections over HTTP.

Storage is selected with --store: memory (default), badger (embedded
key-value files) or kuzu (embedded graph database, which also answers
prerequisite queries with Cypher).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			if backend == "" {
				backend = a.cfg.Store.Backend
			}
			if path == "" {
				path = a.cfg.Store.Path
			}

			r, err := repo.Open(backend, path)
			if err != nil {
				return fmt.Errorf("open %s store: %w", backend, err)
			}
			defer r.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := api.NewServer(r,
				api.WithLogger(a.logger),
				api.WithAllowedOrigins(a.cfg.Server.AllowedOrigins...),
			)
			if err := srv.Start(ctx, addr); err != nil {
				return err
			}
			a.logger.Info("roadmap server listening", "addr", srv.Addr(), "store", backend)

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVar(&backend, "store", "", "storage backend: memory, badger or kuzu")
	cmd.Flags().StringVar(&path, "store-path", "", "data directory for badger or kuzu")
	return cmd
}
