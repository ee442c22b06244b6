// Command fire-dispatch runs the Fire Dispatch Bridge (spec §4.F). Unlike
// the other workers it is not a single consumer: it supervises one
// firedispatch.Dispatcher goroutine per known EA target_uuid, because
// ordering within an EA's fire stream can only be guaranteed by a single
// consumer reading it. The supervisor rescans the EA registry periodically
// and starts a dispatcher for every target_uuid it hasn't seen yet;
// dispatchers for EAs that vanish simply idle on an empty stream rather
// than being torn down, matching the teacher's preference for simple,
// leak-tolerant worker pools over precise lifecycle management.
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
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"signalcore/internal/config"
	"signalcore/internal/database"
	"signalcore/internal/firedispatch"
	"signalcore/internal/ipc"
	"signalcore/internal/store"
	"signalcore/internal/streams"
)

var startTime = time.Now()
var routed atomic.Int64
var reclaimed atomic.Int64

const (
	pollBatchSize = 50
	pollBlock     = 5 * time.Second
	reclaimEvery  = 30 * time.Second
	rescanEvery   = 60 * time.Second
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
	writer := ipc.NewWriter(cfg.IPCBaseDir)

	sup := &supervisor{store: st, redis: redisClient, ipc: writer, enqueue: cfg.BridgeEnqueue, started: make(map[string]bool)}
	if !cfg.BridgeEnqueue {
		log.Println("bridge_enqueue disabled: every dispatcher will ack fires without writing EA IPC (observation-only mode)")
	}

	go startHTTPServer(cfg.HTTPPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutdown signal received, draining...")
		cancel()
	}()

	log.Println("fire-dispatch started")
	sup.run(ctx)
	log.Println("fire-dispatch exiting")
}

// supervisor discovers EA target_uuids and keeps exactly one dispatcher
// goroutine running per target_uuid for the process lifetime.
type supervisor struct {
	store   *store.Repository
	redis   *redis.Client
	ipc     *ipc.Writer
	enqueue bool

	mu      sync.Mutex
	started map[string]bool
}

func (s *supervisor) run(ctx context.Context) {
	s.rescan(ctx)

	ticker := time.NewTicker(rescanEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rescan(ctx)
		}
	}
}

func (s *supervisor) rescan(ctx context.Context) {
	instances, err := s.store.ListEAInstances(ctx)
	if err != nil {
		log.Printf("rescan failed: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ea := range instances {
		if s.started[ea.TargetUUID] {
			continue
		}
		s.started[ea.TargetUUID] = true
		go s.runDispatcher(ctx, ea.TargetUUID)
	}
}

func (s *supervisor) runDispatcher(ctx context.Context, targetUUID string) {
	stream := streams.New(s.redis, streams.FireKey(targetUUID))
	if err := stream.EnsureGroup(ctx, streams.FireDispatchGroup); err != nil {
		log.Printf("ensure group for %s failed: %v", targetUUID, err)
		return
	}

	dispatcher := firedispatch.New(stream, streams.FireDispatchGroup, targetUUID, s.store, s.ipc)
	dispatcher.SkipEnqueue = !s.enqueue

	reclaimTicker := time.NewTicker(reclaimEvery)
	defer reclaimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reclaimTicker.C:
			n, err := dispatcher.ReclaimStale(ctx)
			if err != nil {
				log.Printf("reclaim for %s failed: %v", targetUUID, err)
				continue
			}
			if n > 0 {
				reclaimed.Add(int64(n))
			}
		default:
			n, err := dispatcher.ProcessBatch(ctx, pollBatchSize, pollBlock)
			if err != nil {
				log.Printf("process batch for %s failed: %v", targetUUID, err)
				continue
			}
			if n > 0 {
				routed.Add(int64(n))
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
		"service": "fire-dispatch",
		"status":  "healthy",
		"uptime":  time.Since(startTime).String(),
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"uptime_seconds": time.Since(startTime).Seconds(),
		"routed":         routed.Load(),
		"reclaimed":      reclaimed.Load(),
	})
}

func handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP signalcore_fire_dispatch_uptime_seconds Service uptime\n")
	fmt.Fprintf(w, "# TYPE signalcore_fire_dispatch_uptime_seconds gauge\n")
	fmt.Fprintf(w, "signalcore_fire_dispatch_uptime_seconds %.0f\n", time.Since(startTime).Seconds())
	fmt.Fprintf(w, "# HELP signalcore_fire_dispatch_routed_total Fires routed to EA IPC\n")
	fmt.Fprintf(w, "# TYPE signalcore_fire_dispatch_routed_total counter\n")
	fmt.Fprintf(w, "signalcore_fire_dispatch_routed_total %d\n", routed.Load())
	fmt.Fprintf(w, "# HELP signalcore_fire_dispatch_reclaimed_total Fires reclaimed from stale delivery\n")
	fmt.Fprintf(w, "# TYPE signalcore_fire_dispatch_reclaimed_total counter\n")
	fmt.Fprintf(w, "signalcore_fire_dispatch_reclaimed_total %d\n", reclaimed.Load())
}
