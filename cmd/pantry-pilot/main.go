// Package main boots the Pantry Pilot HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/pantry-pilot/internal/config"
	httpapi "github.com/fairyhunter13/pantry-pilot/internal/http"
	"github.com/fairyhunter13/pantry-pilot/internal/obs"
	"github.com/fairyhunter13/pantry-pilot/internal/remote"
	"github.com/fairyhunter13/pantry-pilot/internal/session"
)

const serviceName = "pantry-pilot"

func main() {
	logg := obs.NewLogger(obs.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), "dotenv_not_found")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "config_invalid", err)
		os.Exit(1)
	}

	logg = obs.NewLogger(obs.Options{
		ServiceName: serviceName,
		Level:       obs.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "service_failed", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "service_stopped")
}

func run(cfg *config.Config, logg *obs.Logger) (err error) {
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":     cfg.App.Env,
		"addr":    cfg.HTTP.Addr,
		"policy":  cfg.Sync.Policy,
		"backend": cfg.Store.Backend,
	})
	logg.Info(ctx, "service_starting")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	openCtx, cancelOpen := context.WithTimeout(ctx, cfg.Sync.StoreTimeout)
	st, closeStore, err := remote.Open(openCtx, cfg, logg)
	cancelOpen()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeStore())
	}()

	sess := session.New(st, session.Config{
		Policy:       cfg.Sync.Policy,
		StoreTimeout: cfg.Sync.StoreTimeout,
		Metrics:      obs.NewSyncMetrics(reg),
		Logger:       logg,
	})
	if err := sess.Open(ctx); err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "generation", sess.Generation()), "inventory_loaded")

	app := httpapi.NewApp(sess, logg)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(app, reg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Sync.StoreTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sess.Start(sigCtx)

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		logg.Info(ctx, "http_listen")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logg.Info(ctx, "shutdown_begin")
		return shutdown(ctx, cfg, logg, app, sess, srv)
	})
	return g.Wait()
}

// shutdown stops intake, waits for in-flight requests, drains the eager
// flusher and performs a last flush so no local change is dropped on exit.
func shutdown(ctx context.Context, cfg *config.Config, logg *obs.Logger, app *httpapi.App, sess *session.Session, srv *http.Server) error {
	app.StartShutdown()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	var errs error
	if err := srv.Shutdown(drainCtx); err != nil {
		logg.Error(ctx, "http_shutdown_error", err)
		errs = multierr.Append(errs, err)
	}
	if sess.Status().Policy == config.PolicyEager && !sess.Drain(drainCtx) {
		logg.Warn(ctx, "eager_drain_timeout")
	}
	sess.Stop()
	if sess.Dirty() {
		res, err := sess.Sync(drainCtx)
		if err != nil {
			logg.Error(ctx, "shutdown_flush_failed", err)
			errs = multierr.Append(errs, err)
		} else {
			logg.Info(logg.WithField(ctx, "outcome", res.Outcome), "shutdown_flush_complete")
		}
	}
	return errs
}
