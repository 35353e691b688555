package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/admin"
	"github.com/meikuraledutech/flow/memory"
	"github.com/meikuraledutech/flow/postgres"
	"github.com/meikuraledutech/flow/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the editor API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, o)
		},
	}
}

func serve(ctx context.Context, o *options) error {
	store, closeStore, err := openStore(ctx, o)
	if err != nil {
		return err
	}
	defer closeStore()

	var adm server.Admin
	if o.cfg.Admin.BaseURL != "" {
		adm = admin.New(admin.Config{
			BaseURL:     o.cfg.Admin.BaseURL,
			OperatorUID: o.cfg.Admin.OperatorUID,
			OwnerGroups: o.cfg.Admin.OwnerGroups,
			Timeout:     o.cfg.Admin.Timeout,
		}, nil, o.log.Named("admin"))
	} else {
		o.log.Warn("admin API not configured; expand, submit and publish are disabled")
	}

	srv := server.New(store, adm, o.log.Named("http"), server.Options{
		Export: flow.ExportOptions{AllowIsolatedTasks: o.cfg.AllowIsolatedTasks},
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(o.cfg.Listen) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	o.log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// openStore connects to postgres when a database URL is configured and falls
// back to in-memory storage otherwise.
func openStore(ctx context.Context, o *options) (flow.Store, func(), error) {
	if o.cfg.DatabaseURL == "" {
		o.log.Info("using in-memory storage")
		return memory.New(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, o.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	o.log.Info("connected to postgres", zap.String("host", pool.Config().ConnConfig.Host))
	return postgres.New(pool), pool.Close, nil
}
