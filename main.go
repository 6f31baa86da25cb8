/*
Package main
File: main.go
Description: Server entry point. Loads the catalog, creates the single play
session, starts the real-time WebSocket hub and runs the heartbeat that feeds
wall-clock time into the economy.

SIGHUP re-reads the configuration file and applies its rate limits to the
running server. The catalog, loop timings and click cap stay as loaded at
startup.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/everforgeworks/moai-clicker/internal/api"
	"github.com/everforgeworks/moai-clicker/internal/config"
	"github.com/everforgeworks/moai-clicker/internal/platform/logger"
	"github.com/everforgeworks/moai-clicker/internal/platform/metrics"
	"github.com/everforgeworks/moai-clicker/internal/session"
)

const (
	limiterSweep = time.Minute
	limiterIdle  = 10 * time.Minute
)

func main() {
	var (
		configPath string
		debug      bool
	)
	flag.StringVar(&configPath, "config", "moai.yaml", "path to the YAML configuration")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	log := logger.NewLogger(debug)

	// 1. Load configuration and the generator catalog
	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Warnf("%s not found, using built-in defaults", configPath)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Errorf("Config Fail: %v", err)
		os.Exit(1)
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		log.Errorf("Catalog Fail: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. The one economy instance for this process
	m := metrics.New()
	sess := session.New(catalog, session.RealClock{}, log, m)
	log.Infof("Session %s ready with %d generator kinds", sess.ID, catalog.Len())

	// 3. Real-time hub
	hub := api.NewHub(log, m)
	go hub.Run(ctx)

	// 4. THE HEARTBEAT
	// Samples the clock every tick and pushes a state pulse every N ticks.
	go sess.Run(ctx, cfg.Loop.TickInterval, cfg.Loop.BroadcastEvery, hub)

	// 5. HTTP server
	limiter := api.NewLimiter(cfg.Limits.ActionsPerSecond, cfg.Limits.Burst)
	go limiter.Run(ctx, limiterSweep, limiterIdle)
	go watchReload(ctx, configPath, limiter, log)

	opts := api.Options{AllowedOrigin: cfg.Server.AllowedOrigin, MaxClickAmount: cfg.Limits.MaxClickAmount}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(sess, hub, limiter, m, log, opts).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("MOAI CLICKER server live on %s", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("Server error: %v", err)
		os.Exit(1)
	}
}

// watchReload applies the file's rate limits on every SIGHUP until ctx is done.
func watchReload(ctx context.Context, path string, limiter *api.Limiter, log *logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reloadLimits(path, limiter, log); err != nil {
				log.Warnf("Reload Fail, keeping current limits: %v", err)
			}
		}
	}
}

// reloadLimits reads path and retunes limiter. On error the limiter is untouched.
func reloadLimits(path string, limiter *api.Limiter, log *logger.Logger) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	limiter.Reconfigure(cfg.Limits.ActionsPerSecond, cfg.Limits.Burst)
	log.Infof("Reloaded limits from %s: %.2f actions/s, burst %d", path, cfg.Limits.ActionsPerSecond, cfg.Limits.Burst)
	return nil
}
