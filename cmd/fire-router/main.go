// Command fire-router runs the Fire Command Router (spec §4.E): the
// JWT-protected HTTP endpoint web clients call to submit a trade
// instruction. CORS and flow-ID propagation are chained around JWT
// validation the same way the teacher's services wire libs/middleware
// around libs/auth; the rate limiter sits inside JWT validation so it keys
// on the authenticated user_id.
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

	"github.com/redis/go-redis/v9"

	"signalcore/internal/auth"
	"signalcore/internal/config"
	"signalcore/internal/database"
	"signalcore/internal/eventbus"
	"signalcore/internal/firerouter"
	"signalcore/internal/ipc"
	"signalcore/internal/middleware"
	"signalcore/internal/risk"
	"signalcore/internal/store"
	"signalcore/internal/streams"
)

func main() {
	httpPort := flag.Int("http-port", 0, "HTTP port override (0 = use config)")
	mode := flag.String("mode", "", "delivery mode override: legacy, shadow, or redis (blank = use config)")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *httpPort != 0 {
		cfg.HTTPPort = *httpPort
	}
	deliveryMode := cfg.RouterMode()
	if *mode != "" {
		deliveryMode = *mode
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
	publisher := eventbus.NewClient(redisClient, "fire-router")

	policy, err := risk.LoadPolicy(cfg.RiskPolicyPath)
	if err != nil {
		log.Fatalf("failed to load risk policy: %v", err)
	}

	streamFor := func(targetUUID string) interface {
		Append(ctx context.Context, fields map[string]string) (string, error)
	} {
		return streams.New(redisClient, streams.FireKey(targetUUID))
	}

	router := firerouter.New(st, streamFor, writer, publisher, policy, firerouter.Mode(deliveryMode))

	validator, err := auth.NewValidator(auth.Config{Secret: []byte(cfg.JWTSecret)})
	if err != nil {
		log.Fatalf("failed to build JWT validator: %v", err)
	}
	rateLimiter := middleware.NewRateLimiterFromEnv()
	cors := middleware.CORS(middleware.CORSConfigFromEnv())

	handler := middleware.FlowID(cors(validator.Middleware(rateLimiter.Middleware(router))))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("fire-router listening on %s (mode: %s)", srv.Addr, deliveryMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("shutdown signal received, draining...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	log.Println("fire-router exiting")
}
