// Command confirmation-listener runs the Confirmation Listener (spec
// §4.G): a ticker-driven poll of the EA confirmation-file directory,
// correlating each confirmation to its fire and publishing a
// trade_executed event.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"signalcore/internal/confirmation"
	"signalcore/internal/config"
	"signalcore/internal/database"
	"signalcore/internal/eventbus"
	"signalcore/internal/store"
)

var startTime = time.Now()
var polls atomic.Int64
var pollErrors atomic.Int64

const pollEvery = 5 * time.Second

func main() {
	httpPort := flag.Int("http-port", 0, "metrics HTTP port override (0 = use config)")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *httpPort != 0 {
		cfg.HTTPPort = *httpPort
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConfig := database.DefaultConfig()
	dbConfig.DSN = cfg.PostgresDSN
	db, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer redisClient.Close()

	st := store.New(db.DB)
	publisher := eventbus.NewClient(redisClient, "confirmation-listener")
	listener := confirmation.New(cfg.IPCBaseDir, st, publisher)

	go startHTTPServer(cfg.HTTPPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutdown signal received, draining...")
		cancel()
	}()

	log.Println("confirmation-listener started")
	runLoop(ctx, listener)
	log.Println("confirmation-listener exiting")
}

func runLoop(ctx context.Context, listener *confirmation.Listener) {
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			polls.Add(1)
			if err := listener.Poll(ctx); err != nil {
				pollErrors.Add(1)
				log.Printf("poll failed: %v", err)
			}
		}
	}
}

func startHTTPServer(port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/metrics", handleMetrics)
	mux.HandleFunc("/metrics/prometheus", handlePrometheusMetrics)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("HTTP server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service": "confirmation-listener",
		"status":  "healthy",
		"uptime":  time.Since(startTime).String(),
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"uptime_seconds": time.Since(startTime).Seconds(),
		"polls":          polls.Load(),
		"poll_errors":    pollErrors.Load(),
	})
}

func handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP signalcore_confirmation_listener_uptime_seconds Service uptime\n")
	fmt.Fprintf(w, "# TYPE signalcore_confirmation_listener_uptime_seconds gauge\n")
	fmt.Fprintf(w, "signalcore_confirmation_listener_uptime_seconds %.0f\n", time.Since(startTime).Seconds())
	fmt.Fprintf(w, "# HELP signalcore_confirmation_listener_polls_total Poll cycles run\n")
	fmt.Fprintf(w, "# TYPE signalcore_confirmation_listener_polls_total counter\n")
	fmt.Fprintf(w, "signalcore_confirmation_listener_polls_total %d\n", polls.Load())
	fmt.Fprintf(w, "# HELP signalcore_confirmation_listener_poll_errors_total Poll cycles that errored\n")
	fmt.Fprintf(w, "# TYPE signalcore_confirmation_listener_poll_errors_total counter\n")
	fmt.Fprintf(w, "signalcore_confirmation_listener_poll_errors_total %d\n", pollErrors.Load())
}
