package main

import (
	"context"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server, the click aggregator and the limiter janitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := NewServer(a, logger, cfg)
	addr := fmt.Sprintf(":%s", cfg.Port)

	var g run.Group
	{
		g.Add(func() error {
			return srv.Start(addr)
		}, func(error) {
			shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.E.Shutdown(shutdown); err != nil {
				logger.Warn("server shutdown", zap.Error(err))
			}
		})
	}
	{
		// interrupted after the server has drained, so the last requests'
		// clicks are flushed
		workerCtx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return a.clicks.Run(workerCtx)
		}, func(error) {
			cancel()
		})
	}
	{
		janitorCtx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return a.limiter.Run(janitorCtx)
		}, func(error) {
			cancel()
		})
	}
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) || errors.Is(err, http.ErrServerClosed) {
		logger.Info("shut down", zap.Error(err))
		return nil
	}
	return err
}
