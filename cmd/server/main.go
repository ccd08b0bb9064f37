/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the plan engine server. Handles configuration,
  dependency injection, startup restore, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load YAML config with env overrides
  3. Open the SQLite snapshot store
  4. Restore the latest snapshot into the in-memory plan
  5. Wire engine, handler, router, autosave scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to YAML config file (default: plan.yaml)
  -listen  Listen address, overrides config (e.g. ":8080")
  -db      SQLite database path, overrides config
           Use ":memory:" for an in-memory database

STARTUP RESTORE:
  The latest saved snapshot is loaded on boot. An empty database starts
  a blank plan. A snapshot with an unrecognized schema version logs a
  loud warning and starts blank too: the row stays intact in the
  append-only snapshot table for a newer build to read, and the server
  keeps serving rather than crash-looping. Only I/O-level failures are
  fatal.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the autosave scheduler (flushes a final save)
  4. Close the database connection

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Autosave loop
  - store/sqlite/sqlite.go: Snapshot persistence
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/plan-engine/api"
	"github.com/warp/plan-engine/config"
	"github.com/warp/plan-engine/plan"
	"github.com/warp/plan-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "plan.yaml", "Path to YAML config file")
	listen := flag.String("listen", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *dbPath != "" {
		cfg.Database.SQLitePath = *dbPath
	}

	// Durability layer
	db, err := sqlite.New(cfg.Database.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// In-memory plan
	planStore := plan.NewStore()
	if rate, err := decimal.NewFromString(cfg.Plan.DefaultGrowthRate); err == nil {
		planStore.SetGlobalGrowthRate(rate)
	}
	if err := restorePlan(planStore, db); err != nil {
		log.Fatalf("Failed to restore saved plan: %v", err)
	}

	engine := plan.NewEngine(planStore)
	engine.SetHorizonYears(cfg.Plan.HorizonYears)

	handler := api.NewHandler(planStore, engine, db)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	// Autosave
	scheduler := api.NewAutosaveScheduler(planStore, db)
	scheduler.Interval = cfg.AutosaveInterval()
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.Server.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	scheduler.Stop()
	log.Println("Server stopped")
}

// restorePlan loads the latest saved snapshot into the plan store. An
// unrecognized snapshot version starts a blank plan instead of failing:
// the store is left untouched by the failed restore, the row stays in
// the append-only snapshot table, and the user gets a warning instead
// of a crash loop. Only I/O-level failures are returned as errors.
func restorePlan(planStore *plan.Store, db *sqlite.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, err := db.LoadLatest(ctx)
	if errors.Is(err, sqlite.ErrNoSnapshot) {
		log.Println("No saved plan found, starting blank")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load saved plan: %w", err)
	}

	if err := planStore.RestoreFromSnapshot(data); err != nil {
		if errors.Is(err, plan.ErrUnrecognizedSnapshotVersion) {
			log.Printf("[WARN] saved plan not restored (%v); starting blank, the saved data is untouched", err)
			return nil
		}
		return fmt.Errorf("restore saved plan: %w", err)
	}
	log.Printf("Restored plan at store version %d", planStore.Version())
	return nil
}
