// cmd/wcsd/main.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// wcsd is the weapon control core daemon: it loads configuration, wires
// the stores, coordinator, and command server together, and runs the
// tick/replan/status loops until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kjeon/wcs-core/internal/config"
	"github.com/kjeon/wcs-core/internal/coordinator"
	"github.com/kjeon/wcs-core/internal/engagement"
	"github.com/kjeon/wcs-core/internal/events"
	"github.com/kjeon/wcs-core/internal/log"
	"github.com/kjeon/wcs-core/internal/metrics"
	"github.com/kjeon/wcs-core/internal/mineplan"
	"github.com/kjeon/wcs-core/internal/rpcserver"
	"github.com/kjeon/wcs-core/internal/targetreg"
	"github.com/kjeon/wcs-core/internal/weapon"
)

var (
	configPath  = flag.String("config", "", "path to INI configuration file")
	listenAddr  = flag.String("listen", ":9120", "command server listen address")
	metricsAddr = flag.String("metrics", ":9121", "metrics HTTP listen address (empty to disable)")
	logLevel    = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", *configPath, err)
		os.Exit(1)
	}

	lg := log.New(*logLevel, cfg.Paths.LogPath)

	mc, err := metrics.New(nil)
	if err != nil {
		lg.Errorf("metrics: %v", err)
		os.Exit(1)
	}

	plans := mineplan.New(cfg.Paths.MineDataPath, cfg.MineDropPlan.MaxPlanLists, cfg.MineDropPlan.MaxPlansPerList, lg)
	if err := plans.LoadAll(); err != nil {
		lg.Errorf("mine plan store: %v", err)
		os.Exit(1)
	}

	targets := targetreg.New(targetreg.DefaultMaxAge)
	stream := events.New(lg)
	defer stream.Destroy()

	factory := weapon.NewDefaultFactory(weapon.Params{
		OnDelay:      cfg.LaunchDelay(),
		MineSpeedMps: cfg.Weapon.MineSpeed,
		Calculator:   engagement.DefaultCalculator{MineSpeedMps: cfg.Weapon.MineSpeed},
		Metrics:      mc,
		Logger:       lg,
	})

	coord := coordinator.New(cfg.System.MaxLaunchTubes, factory, plans, targets, stream, mc, lg)
	if err := coord.Initialize(); err != nil {
		lg.Errorf("coordinator: %v", err)
		os.Exit(1)
	}

	dispatcher := rpcserver.NewDispatcher(coord, plans, stream, cfg.System.CommandWorkers, lg)
	server, err := rpcserver.New(*listenAddr, dispatcher, lg)
	if err != nil {
		lg.Errorf("command server: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return server.Serve(ctx) })

	g.Go(func() error {
		ticker := time.NewTicker(cfg.UpdateInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				coord.Tick()
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.EngagementPlanInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				coord.CalculateAllEngagementPlans()
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.StatusReportInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				coord.UpdateStateGauges()
			}
		}
	})

	if *metricsAddr != "" {
		msrv := &http.Server{Addr: *metricsAddr, Handler: mc.Handler()}
		g.Go(func() error {
			err := msrv.ListenAndServe()
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return msrv.Shutdown(shutdownCtx)
		})
	}

	lg.Info("wcsd running", "tubes", cfg.System.MaxLaunchTubes, "listen", *listenAddr)

	err = g.Wait()
	if shutdownErr := coord.Shutdown(); shutdownErr != nil {
		lg.Errorf("shutdown: %v", shutdownErr)
	}
	if err != nil {
		lg.Errorf("%v", err)
		os.Exit(1)
	}
}
