// Command cutoverctl is the operator CLI for the dual-run cutover (spec
// §4.J): status/cutover/rollback/smoke subcommands against the persisted
// supervisor state, reporting live stream and EA-freshness figures
// alongside it. Exit codes follow spec §6: 0 success, 2 configuration
// error, 3 remote (DB/Redis) unavailable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"signalcore/internal/config"
	"signalcore/internal/cutover"
	"signalcore/internal/database"
	"signalcore/internal/eventbus"
	"signalcore/internal/firerouter"
	"signalcore/internal/model"
	"signalcore/internal/risk"
	"signalcore/internal/store"
	"signalcore/internal/streams"
)

const (
	exitSuccess = 0
	exitUsage   = 2
	exitConfig  = 2
	exitRemote  = 3
	exitFailed  = 1
)

// smokeSymbol and smokeLot are the canary fire's fixed parameters — inert
// choices (smallest legal lot, first symbol in the closed set) since the
// dry_run path never executes against a real account.
const smokeSymbol = "EURUSD"

var smokeLot = decimal.NewFromFloat(0.01)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}
	cmd := os.Args[1]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	operator := fs.String("operator", os.Getenv("USER"), "operator name recorded on the transition")
	stateFile := fs.String("state-file", "", "supervisor state file path (blank = derive from IPC base dir)")
	fs.Parse(os.Args[2:])

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(exitConfig)
	}
	path := *stateFile
	if path == "" {
		path = cfg.IPCBaseDir + "/supervisor_state.json"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbConfig := database.DefaultConfig()
	dbConfig.DSN = cfg.PostgresDSN
	db, err := database.Connect(ctx, dbConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(exitRemote)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to reach redis: %v\n", err)
		os.Exit(exitRemote)
	}

	st := store.New(db.DB)
	signalsStream := streams.New(redisClient, streams.SignalsKey)

	controller := cutover.NewController(path,
		&streamChecker{name: "signals stream", stream: signalsStream, group: streams.RelayGroup},
		&eaFreshnessChecker{store: st},
	)
	controller.Smoker = newSmokeFire(cfg, st, redisClient)

	var exitErr error
	switch cmd {
	case "status":
		exitErr = runStatus(ctx, controller)
	case "cutover":
		exitErr = runCutover(ctx, controller, *operator)
	case "rollback":
		exitErr = runRollback(ctx, controller, *operator)
	case "smoke":
		exitErr = runSmoke(ctx, controller)
	default:
		usage()
		os.Exit(exitUsage)
	}
	if exitErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, exitErr)
		os.Exit(exitFailed)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cutoverctl <status|cutover|rollback|smoke> [-operator NAME] [-state-file PATH]")
}

func runStatus(ctx context.Context, c *cutover.Controller) error {
	report, err := c.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("mode: %s (changed %s by %s)\n", report.State.Mode, report.State.ChangedAt.Format(time.RFC3339), report.State.ChangedBy)
	for _, line := range report.Lines {
		fmt.Println("  " + line)
	}
	return nil
}

func runCutover(ctx context.Context, c *cutover.Controller, operator string) error {
	state, err := c.Cutover(ctx, operator)
	if err != nil {
		return err
	}
	fmt.Printf("cutover complete: mode now %s\n", state.Mode)
	return nil
}

func runRollback(ctx context.Context, c *cutover.Controller, operator string) error {
	state, err := c.Rollback(ctx, operator)
	if err != nil {
		return err
	}
	fmt.Printf("rollback complete: mode now %s\n", state.Mode)
	return nil
}

func runSmoke(ctx context.Context, c *cutover.Controller) error {
	if err := c.Smoke(ctx); err != nil {
		return err
	}
	fmt.Println("smoke: all checks healthy")
	return nil
}

// streamChecker reports a stream's length and worst-case pending idle
// time as the cutover status line's view of delivery health.
type streamChecker struct {
	name   string
	stream *streams.Stream
	group  string
}

func (c *streamChecker) Describe(ctx context.Context) (string, error) {
	length, err := c.stream.Len(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.name, err)
	}
	pending, err := c.stream.Pending(ctx, c.group, 0, 100)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.name, err)
	}
	var maxIdle time.Duration
	for _, p := range pending {
		if p.IdleTime > maxIdle {
			maxIdle = p.IdleTime
		}
	}
	return fmt.Sprintf("%s: %d entries, %d pending, max idle %s", c.name, length, len(pending), maxIdle), nil
}

// eaFreshnessChecker reports how many EA instances have gone stale beyond
// the freshness threshold.
type eaFreshnessChecker struct {
	store *store.Repository
}

func (c *eaFreshnessChecker) Describe(ctx context.Context) (string, error) {
	stale, err := c.store.ListStaleEAInstances(ctx, time.Now().Add(-180*time.Second), 50)
	if err != nil {
		return "", fmt.Errorf("ea freshness: %w", err)
	}
	return fmt.Sprintf("ea freshness: %d stale instance(s)", len(stale)), nil
}

// smokeFire wires the cutover.SmokeFire contract to a firerouter.Server
// built with inert IPC/stream dependencies: a dry_run fire never reaches
// either one on the real submission path, so these exist purely as a
// belt-and-suspenders guard that errors loudly if that invariant is ever
// broken, rather than relying solely on the caller to notice silence.
type smokeFire struct {
	router   *firerouter.Server
	events   *recordingPublisher
	userID   string
	symbol   string
	lot      decimal.Decimal
	disabled bool
}

// newSmokeFire returns a SmokeFire wired to cfg.SmokeUserID's canary
// account, or one whose Submit is a documented no-op if no canary account
// is configured.
func newSmokeFire(cfg *config.Config, st *store.Repository, redisClient *redis.Client) *smokeFire {
	if cfg.SmokeUserID == "" {
		return &smokeFire{disabled: true}
	}

	events := &recordingPublisher{inner: eventbus.NewClient(redisClient, "cutoverctl-smoke")}
	policy, err := risk.LoadPolicy(cfg.RiskPolicyPath)
	if err != nil {
		policy = risk.DefaultPolicy()
	}
	router := firerouter.New(st, noStream, noWriteIPC{}, events, policy, firerouter.ModeRedis)

	return &smokeFire{
		router: router,
		events: events,
		userID: cfg.SmokeUserID,
		symbol: smokeSymbol,
		lot:    smokeLot,
	}
}

func (sf *smokeFire) Submit(ctx context.Context) error {
	if sf.disabled {
		fmt.Println("smoke: SIGNALCORE_SMOKE_USER_ID not set, skipping dry-run fire round trip")
		return nil
	}

	sf.events.fired = false
	resp, err := sf.router.SubmitSmoke(ctx, sf.userID, sf.symbol, sf.lot)
	if err != nil {
		return fmt.Errorf("dry-run fire for %s: %w", sf.userID, err)
	}
	if resp.Status != string(model.FireStatusPending) && resp.Status != string(model.FireStatusDeduplicated) {
		return fmt.Errorf("dry-run fire %s returned unexpected status %q", resp.FireID, resp.Status)
	}
	if !sf.events.fired {
		return fmt.Errorf("dry-run fire %s produced no observation event", resp.FireID)
	}
	fmt.Println("smoke: dry-run fire round-tripped with no EA IPC write")
	return nil
}

// recordingPublisher wraps a real publisher and records whether Publish
// was invoked at all, giving the smoke check something concrete to assert
// beyond "no error was returned".
type recordingPublisher struct {
	inner *eventbus.Client
	fired bool
}

func (p *recordingPublisher) Publish(ctx context.Context, eventID, eventType, correlationID, userID string, data map[string]any) {
	p.fired = true
	p.inner.Publish(ctx, eventID, eventType, correlationID, userID, data)
}

// noWriteIPC always fails: a dry_run fire must never reach this point
// (spec invariant 7), so if it ever does, smoke needs to know loudly
// rather than silently writing to the real EA channel.
type noWriteIPC struct{}

func (noWriteIPC) Write(f model.Fire) error {
	return fmt.Errorf("smoke: dry-run fire %s unexpectedly reached EA IPC write", f.FireID)
}

// noStream mirrors noWriteIPC for the per-EA stream append: a dry_run fire
// never appends either, so smoke's router is never given a real one.
func noStream(targetUUID string) interface {
	Append(ctx context.Context, fields map[string]string) (string, error)
} {
	return noAppendStream{}
}

type noAppendStream struct{}

func (noAppendStream) Append(ctx context.Context, fields map[string]string) (string, error) {
	return "", errors.New("smoke: dry-run fire unexpectedly appended to the fire stream")
}
