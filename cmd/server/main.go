/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the workforce engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config (file, .env, environment)
  2. Initialize SQLite store, bound every call with the store timeout
  3. Build ledger, reconciliation engine, registry, payroll aggregator
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (optional)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the change watcher and close the database
  4. Exit

EXAMPLES:
  ./server -config=./workforce.yaml
  ./server -db=":memory:" -port=3000
  WORKFORCE_STORE_TIMEOUT=2s ./server

SEE ALSO:
  - config/config.go: Settings and precedence
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/workforce-engine/api"
	"github.com/warp/workforce-engine/attendance"
	"github.com/warp/workforce-engine/audit"
	"github.com/warp/workforce-engine/config"
	"github.com/warp/workforce-engine/generic"
	"github.com/warp/workforce-engine/leave"
	"github.com/warp/workforce-engine/payroll"
	"github.com/warp/workforce-engine/reconcile"
	"github.com/warp/workforce-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[Server] Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	rates, err := cfg.PayrollRates()
	if err != nil {
		log.Fatalf("[Server] Invalid rates: %v", err)
	}

	// Initialize store
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("[Server] Failed to initialize database: %v", err)
	}
	defer db.Close()
	db.SetPollInterval(cfg.WatchInterval)
	store := generic.WithTimeout(db, cfg.StoreTimeout)

	// Domain services
	trail := audit.NewTrail(db)
	ledger := attendance.NewLedger(store, trail)
	registry := leave.NewRegistry(store, reconcile.NewEngine(ledger, trail), trail)
	agg := payroll.NewAggregator(store, ledger, registry, trail)
	agg.Rates = rates

	unsubscribe := store.Subscribe(generic.RootLeaveRequests, func(ev generic.ChangeEvent) {
		log.Printf("[Server] %s %s (v%d)", ev.Kind, ev.Path, ev.Version)
	})
	defer unsubscribe()

	// Create router
	handler := api.NewHandler(ledger, registry, agg, trail)
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.CORSOrigins})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("[Server] Starting on http://localhost:%d (db=%s, store timeout=%v)", cfg.Port, cfg.DBPath, cfg.StoreTimeout)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] Failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[Server] Forced to shutdown: %v", err)
	}

	log.Println("[Server] Stopped")
}
