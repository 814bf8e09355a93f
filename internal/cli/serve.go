package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atinyakov/BudgetKeeper/internal/certgen"
	handler "github.com/atinyakov/BudgetKeeper/internal/server/handler/http"
	"github.com/atinyakov/BudgetKeeper/internal/staging"
)

// shutdownTimeout bounds the graceful stop of the control API.
const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control API, auto sync and the staging cleaner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, root, func(a *app) error {
				return serve(ctx, a)
			})
		},
	}
}

func serve(ctx context.Context, a *app) error {
	opts := a.opts

	staging.StartCleaner(ctx, opts.StagingDir(), time.Hour, opts.StagingRetention, a.log)
	if opts.AutoSyncInterval > 0 {
		a.cloudSync.StartAutoSync(ctx, opts.AutoSyncInterval)
	}

	router := handler.NewRouter(
		&handler.SyncHandler{CloudSync: a.cloudSync, Logger: a.log},
		promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		opts.APIToken,
		a.log,
	)
	server := &http.Server{
		Addr:              opts.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if opts.TLS {
		pair, err := certgen.LoadOrCreate(opts.TLSCert, opts.TLSKey, certgen.HostsFor(opts.ListenAddr))
		if err != nil {
			return fmt.Errorf("control API certificate: %w", err)
		}
		server.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{pair},
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting control API", zap.String("addr", opts.ListenAddr), zap.Bool("tls", opts.TLS))
		if opts.TLS {
			errCh <- server.ListenAndServeTLS("", "")
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down control API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
