// Command watchdog runs the Watchdogs & Pager component (spec §4.I): four
// periodic probes (EA freshness, stuck fires, stream lag, backup recency)
// on a 30s tick, paging a webhook sink and falling back to a local
// JSON-lines pager log on send failure.
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
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"signalcore/internal/config"
	"signalcore/internal/database"
	"signalcore/internal/store"
	"signalcore/internal/streams"
	"signalcore/internal/watchdog"
)

var startTime = time.Now()

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
	signalsStream := streams.New(redisClient, streams.SignalsKey)

	sink := watchdog.NewWebhookSink(cfg.PagerWebhookURL)
	pagerLog := watchdog.NewPagerLog(filepath.Join(cfg.IPCBaseDir, "pager.log"))

	monitor := watchdog.NewMonitor(sink, pagerLog,
		watchdog.NewEAFreshnessProbe(st, 180*time.Second),
		watchdog.NewStuckFireProbe(st, 120*time.Second),
		watchdog.NewStreamLagProbe("signals_stream_lag", signalsStream, streams.RelayGroup),
		watchdog.NewBackupRecencyProbe(st),
	)

	go startHTTPServer(cfg.HTTPPort, monitor)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutdown signal received, draining...")
		cancel()
	}()

	log.Println("watchdog started")
	monitor.Run(ctx)
	log.Println("watchdog exiting")
}

func startHTTPServer(port int, monitor *watchdog.Monitor) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		handleMetrics(w, r, monitor)
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("HTTP server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service": "watchdog",
		"status":  "healthy",
		"uptime":  time.Since(startTime).String(),
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request, monitor *watchdog.Monitor) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"uptime_seconds": time.Since(startTime).Seconds(),
		"latest":         monitor.Latest(),
	})
}
