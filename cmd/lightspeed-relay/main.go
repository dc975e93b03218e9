package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-relay/config"
	"github.com/tcriess/lightspeed-relay/filter"
	"github.com/tcriess/lightspeed-relay/globals"
	"github.com/tcriess/lightspeed-relay/persistence"
	"github.com/tcriess/lightspeed-relay/room"
	"github.com/tcriess/lightspeed-relay/session"
	"github.com/tcriess/lightspeed-relay/ws"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		globals.AppLogger.Error("could not read configuration", "error", err)
		os.Exit(1)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		globals.AppLogger.Error("could not open event log", "error", err)
		os.Exit(1)
	}
	if persister != nil {
		defer persister.Close()
	}

	filters, err := filter.NewCache(globalConfig.FilterCacheSize)
	if err != nil {
		globals.AppLogger.Error("could not create filter cache", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := room.NewRegistry()
	hub := ws.NewHub()
	opts := []session.Option{
		session.WithGracePeriod(globalConfig.GracePeriod),
		session.WithFilterCache(filters),
		session.WithEventQueueSize(globalConfig.EventQueueSize),
		session.WithStatsCron(globalConfig.StatsCron),
	}
	if persister != nil {
		opts = append(opts, session.WithPersister(persister))
	}
	coordinator := session.NewCoordinator(registry, hub, opts...)
	hub.SetHandler(coordinator)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := coordinator.Run(ctx); err != nil {
			globals.AppLogger.Error("coordinator stopped", "error", err)
			stop()
		}
	}()

	server := &http.Server{
		Addr:              globalConfig.Addr(),
		Handler:           ws.NewRouter(hub, registry),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			globals.AppLogger.Warn("http shutdown", "error", err)
		}
	}()

	globals.AppLogger.Info("relay listening", "addr", server.Addr, "grace_period", globalConfig.GracePeriod, "persistence", globalConfig.PersistenceConfig.Type)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		globals.AppLogger.Error("stopped listening", "error", err)
		stop()
	}
	wg.Wait()
	globals.AppLogger.Info("relay stopped")
}
