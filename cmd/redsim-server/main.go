// redsim-server runs the emulator behind a real TCP listener, so any
// redis client or CLI can talk to it. State is in-memory and
// volatile; the process exists for integration environments where an
// in-process handle is not an option.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/redsim-go"
	"github.com/yndnr/redsim-go/internal/config"
	"github.com/yndnr/redsim-go/internal/infra/buildinfo"
	"github.com/yndnr/redsim-go/internal/infra/shutdown"
	"github.com/yndnr/redsim-go/internal/netserver"
	"github.com/yndnr/redsim-go/internal/telemetry/logger"
	"github.com/yndnr/redsim-go/internal/telemetry/metric"
)

func main() {
	app := &cli.App{
		Name:    "redsim-server",
		Usage:   "in-memory Redis-compatible server for test environments",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address (overrides the config file)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level: debug, info, warn, error",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Server.Enabled = true
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info("starting redsim-server",
		"version", buildinfo.Version,
		"addr", cfg.Server.Addr)

	metrics := metric.New()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	srv := redsim.NewServer(
		redsim.WithConfig(cfg),
		redsim.WithRealClock(),
		redsim.WithLogger(log),
		redsim.WithMetrics(metrics),
	)

	front := netserver.New(cfg.Server, srv.Engine(), log)
	ctx := context.Background()
	if err := front.Start(ctx); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		go func() {
			log.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	// Hot-reload CONFIG-settable knobs when the file changes.
	var watcher *config.Watcher
	if path := c.String("config"); path != "" {
		watcher, err = config.NewWatcher(path, nil)
		if err != nil {
			log.Warn("config watcher unavailable", "error", err)
		} else {
			watcher.OnReload(func(next *config.Config) {
				logger.SetLevel(next.Log.Level)
			})
			watcher.StartAsync()
		}
	}

	handler := shutdown.NewHandler(30 * time.Second)
	handler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down listener")
		return front.Shutdown(ctx)
	})
	handler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down engine")
		srv.Close()
		return nil
	})
	if metricsSrv != nil {
		handler.OnShutdown(func(ctx context.Context) error {
			return metricsSrv.Shutdown(ctx)
		})
	}
	if watcher != nil {
		handler.OnShutdown(func(context.Context) error {
			return watcher.Stop()
		})
	}

	return handler.Wait()
}
