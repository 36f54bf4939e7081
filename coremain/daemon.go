package coremain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultSyncInterval = 6 * time.Hour

// runDaemon re-syncs every stored object each sync interval until ctx is
// done. Failed rounds are logged and retried at the next tick.
func runDaemon(ctx context.Context, a *App) error {
	interval := a.cfg.Sync.Interval
	if interval <= 0 {
		interval = defaultSyncInterval
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("sync daemon started", zap.Duration("interval", interval))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			a.syncRound(ctx)
			select {
			case <-ctx.Done():
				a.logger.Info("sync daemon stopped")
				return nil
			case <-ticker.C:
			}
		}
	})

	if addr := a.cfg.Metrics.Listen; len(addr) > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.metricsReg, promhttp.HandlerOpts{}))
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("starting metrics http server", zap.String("addr", addr))
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return httpServer.Close()
		})
	}
	return g.Wait()
}

func (a *App) syncRound(ctx context.Context) {
	start := time.Now()
	recs, err := a.engine.UpdateExisting(ctx, time.Time{}, time.Time{})
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Error("sync failed", zap.Error(err))
		}
		return
	}
	a.logger.Info("sync done", zap.Int("downloaded", len(recs)), zap.Duration("elapsed", time.Since(start)))
}
