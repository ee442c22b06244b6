// Command event-broker runs the observation event bus's PULL-to-PUB/SUB
// bridge (spec §4.H): it relays every envelope landed on the inbound list
// to the lossy outbound pub/sub channel subscribers read from.
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
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"signalcore/internal/config"
	"signalcore/internal/eventbus"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer redisClient.Close()

	broker := eventbus.NewBroker(redisClient)

	go startHTTPServer(cfg.HTTPPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutdown signal received, draining...")
		cancel()
	}()

	log.Println("event-broker started")
	if err := broker.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("broker run failed: %v", err)
	}
	log.Println("event-broker exiting")
}

func startHTTPServer(port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("HTTP server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service": "event-broker",
		"status":  "healthy",
		"uptime":  time.Since(startTime).String(),
	})
}
