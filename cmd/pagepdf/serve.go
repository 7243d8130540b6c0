package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	exporthttp "github.com/goliatone/go-pagepdf/adapters/http"
	"github.com/goliatone/go-pagepdf/export"
	"github.com/spf13/cobra"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the export HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := exporthttp.Config{
				Exporter:       a.exporter(),
				Opener:         exporthttp.BrowserOpener{Browser: a.browser},
				Store:          a.store,
				StorePrefix:    a.cfg.Store.Prefix,
				StoreTTL:       a.cfg.Store.TTL,
				MaxConcurrent:  a.cfg.Server.MaxConcurrent,
				RequestTimeout: a.cfg.Server.RequestTimeout,
				LinkTTL:        a.cfg.Store.LinkTTL,
				Logger:         a.log,
			}
			if a.signer != nil {
				cfg.Verifier = a.signer
			}
			srv := exporthttp.NewApp(cfg)

			if a.tracker != nil && a.store != nil {
				go export.RunCleanup(ctx, a.tracker, a.store, a.cfg.Store.CleanupInterval, a.log)
			}

			errCh := make(chan error, 1)
			go func() {
				addr := a.cfg.Server.Addr()
				a.log.Infof("starting server on http://%s", addr)
				errCh <- srv.Serve(addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.log.Infof("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
