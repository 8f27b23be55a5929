package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"trade-scanner/src/config"
	"trade-scanner/src/data_source"
	"trade-scanner/src/detector"
	"trade-scanner/src/interfaces"
	"trade-scanner/src/logger"
	"trade-scanner/src/server"
	"trade-scanner/src/storage"
	"trade-scanner/src/stream"
	"trade-scanner/src/utils"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	writeConfig := flag.String("write-config", "", "write the effective configuration (defaults applied) to this path and exit")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	if *writeConfig != "" {
		if err := cfg.Save(*writeConfig); err != nil {
			appLogger.Critical("Failed to write config: %v", err)
		}
		appLogger.Info("Wrote effective configuration to %s", *writeConfig)
		return
	}

	// 1. Setup Storage
	var db interfaces.ISetupStore

	switch cfg.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresSetupStore(cfg.MConfig, appLogger)
	default:
		// Default to SQLite
		db, err = storage.NewSQLiteSetupStore(cfg.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}
	defer db.Close()

	// 2. Upstream connection manager
	manager := stream.NewManager(cfg.Stream, appLogger)

	// 3. Detection engine
	calendars := utils.NewCalendarSet(cfg.Symbols)
	engine := detector.NewEngine(cfg.Detector, calendars, appLogger)

	// 4. Session-gated snapshot poller over the provider REST surface
	snapshots := data_source.NewRestSnapshotSource(cfg.MConfig, appLogger)
	poller := data_source.NewSnapshotPoller(cfg.MConfig, appLogger, snapshots, calendars)

	// 5. Fan-out server
	srv := server.NewFanOutServer(cfg.MConfig, appLogger, manager, engine, db, poller, manager.HealthState)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire data flow: stream -> engine
	go engine.Run(ctx, manager.Bars(), manager.Trades(), manager.Quotes())
	go poller.Run(ctx)

	// Wire setup events: engine -> clients + storage
	go func() {
		for event := range engine.Events() {
			srv.BroadcastSetupEvent(event)
			if err := db.SaveSetup(event.Setup); err != nil {
				appLogger.Warning("Failed to persist setup %s: %v", event.Setup.ID, err)
			}
		}
	}()

	// Wire connection state: stream -> clients
	go func() {
		for state := range manager.States() {
			appLogger.Info("Upstream state: %s (%s)", state.Status, state.Reason)
			srv.BroadcastState(state)
		}
	}()

	// 6. Connect upstream and pre-subscribe the configured universe
	if err := manager.Connect(); err != nil {
		appLogger.Error("Initial upstream connect failed: %v", err)
	}
	manager.Subscribe(cfg.Symbols)

	// 7. Start Server
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	manager.Disconnect()
	cancel()
}
