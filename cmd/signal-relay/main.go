// Command signal-relay runs the Signal Delivery Worker (spec §4.C): it
// reads the shared signals stream as the "signal-relay" consumer group,
// POSTs each entry to the mission-materialization endpoint, and reclaims
// entries abandoned past the pending-age threshold. Shaped after
// jax-signal-generator's main: flag-configured startup, a small metrics
// HTTP server, graceful shutdown on SIGINT/SIGTERM.
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
	"github.com/google/uuid"

	"signalcore/internal/config"
	"signalcore/internal/delivery"
	"signalcore/internal/streams"
)

var startTime = time.Now()
var delivered atomic.Int64
var reclaimed atomic.Int64

const (
	pollBatchSize = 50
	pollBlock     = 5 * time.Second
	reclaimEvery  = 30 * time.Second
)

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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer redisClient.Close()

	stream := streams.New(redisClient, streams.SignalsKey)
	if err := stream.EnsureGroup(ctx, streams.RelayGroup); err != nil {
		log.Fatalf("failed to ensure consumer group: %v", err)
	}

	consumer := "signal-relay-" + uuid.NewString()
	worker := delivery.New(stream, streams.RelayGroup, consumer, cfg.MissionEndpoint)

	go startHTTPServer(cfg.HTTPPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutdown signal received, draining...")
		cancel()
	}()

	log.Printf("signal-relay started (consumer: %s, endpoint: %s)", consumer, cfg.MissionEndpoint)
	runLoop(ctx, worker)
	log.Println("signal-relay exiting")
}

func runLoop(ctx context.Context, worker *delivery.Worker) {
	reclaimTicker := time.NewTicker(reclaimEvery)
	defer reclaimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reclaimTicker.C:
			n, err := worker.ReclaimStale(ctx)
			if err != nil {
				log.Printf("reclaim failed: %v", err)
				continue
			}
			if n > 0 {
				reclaimed.Add(int64(n))
				log.Printf("reclaimed %d stale entries", n)
			}
		default:
			n, err := worker.ProcessBatch(ctx, pollBatchSize, pollBlock)
			if err != nil {
				log.Printf("process batch failed: %v", err)
				continue
			}
			if n > 0 {
				delivered.Add(int64(n))
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
		"service": "signal-relay",
		"status":  "healthy",
		"uptime":  time.Since(startTime).String(),
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"uptime_seconds": time.Since(startTime).Seconds(),
		"delivered":      delivered.Load(),
		"reclaimed":      reclaimed.Load(),
	})
}

func handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP signalcore_signal_relay_uptime_seconds Service uptime\n")
	fmt.Fprintf(w, "# TYPE signalcore_signal_relay_uptime_seconds gauge\n")
	fmt.Fprintf(w, "signalcore_signal_relay_uptime_seconds %.0f\n", time.Since(startTime).Seconds())
	fmt.Fprintf(w, "# HELP signalcore_signal_relay_delivered_total Signals delivered\n")
	fmt.Fprintf(w, "# TYPE signalcore_signal_relay_delivered_total counter\n")
	fmt.Fprintf(w, "signalcore_signal_relay_delivered_total %d\n", delivered.Load())
	fmt.Fprintf(w, "# HELP signalcore_signal_relay_reclaimed_total Stale entries reclaimed\n")
	fmt.Fprintf(w, "# TYPE signalcore_signal_relay_reclaimed_total counter\n")
	fmt.Fprintf(w, "signalcore_signal_relay_reclaimed_total %d\n", reclaimed.Load())
}
