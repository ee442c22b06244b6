// Command signal-ingest runs the Signal Ingest Bridge (spec §4.B): it
// dials the upstream strategy's publish socket, lands every signal
// durably in the state store and signals stream, and publishes an
// observation event. Shaped after jax-signal-generator's main: flag-
// configured startup, a small metrics HTTP server, graceful shutdown on
// SIGINT/SIGTERM.
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

	"signalcore/internal/config"
	"signalcore/internal/database"
	"signalcore/internal/eventbus"
	"signalcore/internal/ingest"
	"signalcore/internal/store"
	"signalcore/internal/streams"
)

var startTime = time.Now()
var reconnects atomic.Int64

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
	log.Println("database connected")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer redisClient.Close()

	st := store.New(db.DB)
	stream := streams.New(redisClient, streams.SignalsKey)
	publisher := eventbus.NewClient(redisClient, "signal-ingest")

	bridge := ingest.New(cfg.UpstreamAddr, st, stream, publisher)

	go startHTTPServer(cfg.HTTPPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutdown signal received, draining...")
		cancel()
	}()

	log.Printf("signal-ingest started (upstream: %s)", cfg.UpstreamAddr)
	if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("bridge run failed: %v", err)
	}
	log.Println("signal-ingest exiting")
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
		"service": "signal-ingest",
		"status":  "healthy",
		"uptime":  time.Since(startTime).String(),
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"uptime_seconds": time.Since(startTime).Seconds(),
		"reconnects":     reconnects.Load(),
	})
}

func handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP signalcore_signal_ingest_uptime_seconds Service uptime\n")
	fmt.Fprintf(w, "# TYPE signalcore_signal_ingest_uptime_seconds gauge\n")
	fmt.Fprintf(w, "signalcore_signal_ingest_uptime_seconds %.0f\n", time.Since(startTime).Seconds())
	fmt.Fprintf(w, "# HELP signalcore_signal_ingest_reconnects_total Upstream reconnect attempts\n")
	fmt.Fprintf(w, "# TYPE signalcore_signal_ingest_reconnects_total counter\n")
	fmt.Fprintf(w, "signalcore_signal_ingest_reconnects_total %d\n", reconnects.Load())
}
