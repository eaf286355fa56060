/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the rule evaluation engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Load legal limits config (optional)
  4. Wire evaluator, occurrence service and payroll calculator
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: rules.db)
           Use ":memory:" for an in-memory database
  -limits  YAML file with per-jurisdiction legal caps (optional;
           built-in defaults apply when omitted)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/rules.db"

  # Run with jurisdiction limits
  ./server -limits="./config/limits.yaml"

ENVIRONMENT:
  No environment variables currently. All config via flags.
  Future: DATABASE_URL, PORT, LOG_LEVEL

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
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

	"github.com/warp/rule-engine/api"
	"github.com/warp/rule-engine/engine"
	"github.com/warp/rule-engine/legal"
	"github.com/warp/rule-engine/occurrence"
	"github.com/warp/rule-engine/payroll"
	"github.com/warp/rule-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "rules.db", "SQLite database path")
	limitsPath := flag.String("limits", "", "YAML file with per-jurisdiction legal caps")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Legal limits (optional)
	var limits *legal.LimitsConfig
	if *limitsPath != "" {
		limits, err = legal.LoadLimits(*limitsPath)
		if err != nil {
			log.Fatalf("Failed to load limits config: %v", err)
		}
		log.Printf("[Main] Loaded legal limits from %s", *limitsPath)
	}

	// Wire the engine
	eval := engine.NewEvaluator()
	occ := occurrence.NewService(store, eval)
	calc := payroll.NewCalculator(eval, store.Policies(), occ, limits, log.Default())
	handler := api.NewHandler(eval, store.Policies(), store, occ, calc, limits)

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
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

	log.Println("Server stopped")
}
