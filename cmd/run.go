package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danielolaszy/arisa/internal/logging"
	"github.com/danielolaszy/arisa/internal/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the tracker and moderate tickets until interrupted",
	Long: `This command polls the tracker every check interval for tickets updated within
the lookback window and runs every enabled rule module against them. Tickets
where no module acted are skipped until their dedup cache entry expires.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		if a.cfg.Cache.TTL >= a.cfg.Issues.Lookback {
			logging.Warn("dedup cache TTL is not shorter than the lookback window, unchanged tickets will be skipped for an extra cycle",
				"ttl", a.cfg.Cache.TTL,
				"lookback", a.cfg.Issues.Lookback)
		}

		metrics.Register()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return a.poller.Run(gctx)
		})
		if a.cfg.Metrics.Address != "" {
			g.Go(func() error {
				return serveMetrics(gctx, a.cfg.Metrics.Address)
			})
		}
		return g.Wait()
	},
}

// serveMetrics exposes the prometheus registry until ctx is cancelled.
func serveMetrics(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Warn("metrics server shutdown failed", "error", err)
		}
	}()

	logging.Info("serving metrics", "address", address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
