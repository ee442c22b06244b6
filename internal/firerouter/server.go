// Package firerouter implements the Fire Command Router (spec §4.E): the
// HTTP endpoint the web layer calls to submit a trade instruction. It
// resolves the target EA server-side, enforces idempotency and freshness,
// and dispatches through whichever of the three delivery modes is active.
// Shaped like the teacher's services/jax-orchestrator HTTP server:
// ServeMux, one Server struct, JSON request/response types per handler.
package firerouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"signalcore/internal/clock"
	"signalcore/internal/errs"
	"signalcore/internal/model"
	"signalcore/internal/observability"
	"signalcore/internal/risk"
	"signalcore/internal/store"
)

// Mode selects which of the three delivery paths a fire takes.
type Mode string

const (
	ModeLegacy Mode = "legacy" // direct IPC only, no stream
	ModeShadow Mode = "shadow" // stream + IPC, dual-run
	ModeRedis  Mode = "redis"  // stream only, target state
)

// fireStore is the subset of *store.Repository the router needs.
type fireStore interface {
	GetEAInstanceByUserID(ctx context.Context, userID string) (model.EAInstance, error)
	InsertFire(ctx context.Context, f model.Fire) (bool, error)
	GetFireByIdemKey(ctx context.Context, userID, idemKey string) (model.Fire, error)
	UpdateFireStatus(ctx context.Context, fireID string, status model.FireStatus, ticket, rejectReason string, at time.Time) error
}

// streamAppender is the narrow slice of *streams.Stream the router needs to
// append a fire command.
type streamAppender interface {
	Append(ctx context.Context, fields map[string]string) (string, error)
}

// streamFactory returns the per-EA fire stream for targetUUID
// (fire.{target_uuid}), so the router never needs a fixed stream key.
type streamFactory func(targetUUID string) streamAppender

// ipcWriter is the narrow slice of *ipc.Writer used for the direct EA IPC
// write in legacy and shadow modes.
type ipcWriter interface {
	Write(f model.Fire) error
}

// publisher is the narrow slice of *eventbus.Client used for observation
// events.
type publisher interface {
	Publish(ctx context.Context, eventID, eventType, correlationID, userID string, data map[string]any)
}

// Server is the Fire Command Router's HTTP handler.
type Server struct {
	Store   fireStore
	Streams streamFactory
	IPC     ipcWriter
	Events  publisher
	Policy  *risk.Policy
	Mode    Mode
	Clock   clock.Clock

	mux *http.ServeMux
}

// New builds a Server wired to concrete production dependencies. Concrete
// types satisfy the narrow interfaces above structurally.
func New(st *store.Repository, streams streamFactory, ipc ipcWriter, events publisher, policy *risk.Policy, mode Mode) *Server {
	s := &Server{
		Store:   st,
		Streams: streams,
		IPC:     ipc,
		Events:  events,
		Policy:  policy,
		Mode:    mode,
		Clock:   clock.System{},
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/fire", s.handleFire)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "signalcore-fire-router",
		"status":  "healthy",
		"mode":    string(s.Mode),
	})
}

// FireRequest is the fire submission payload. user_id is deliberately
// absent: it is resolved from the authenticated caller's JWT claims, never
// taken from the request body (spec §4.E.1).
type FireRequest struct {
	SignalID  string          `json:"signal_id,omitempty"`
	Symbol    string          `json:"symbol"`
	Direction string          `json:"direction"`
	Lot       decimal.Decimal `json:"lot"`
	SL        decimal.Decimal `json:"sl"`
	TP        decimal.Decimal `json:"tp"`
	Comment   string          `json:"comment,omitempty"`
	IdemKey   string          `json:"idem_key,omitempty"`
	DryRun    bool            `json:"dry_run,omitempty"`
}

// FireResponse reports the outcome of a fire submission.
type FireResponse struct {
	FireID string `json:"fire_id"`
	Status string `json:"status"`
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := userIDFromRequest(r)
	if !ok || userID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req FireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	resp, status, err := s.submit(r.Context(), userID, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LogEvent(r.Context(), "warn", "fire_rejected", map[string]any{"error": err.Error()})
	switch {
	case errors.Is(err, errs.ErrValidationRejected):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, errs.ErrRecipientStale):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "unknown EA for user", http.StatusNotFound)
	case errors.Is(err, errs.ErrTransientRemote):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// submit runs the fire command router's full contract (spec §4.E.1-8) and
// returns the JSON response body alongside the HTTP status to use.
func (s *Server) submit(ctx context.Context, userID string, req FireRequest) (FireResponse, int, error) {
	if !model.ValidSymbol(req.Symbol) {
		return FireResponse{}, 0, fmt.Errorf("symbol %q not permitted: %w", req.Symbol, errs.ErrValidationRejected)
	}
	direction := model.Direction(req.Direction)
	if direction != model.DirectionBuy && direction != model.DirectionSell {
		return FireResponse{}, 0, fmt.Errorf("direction %q must be BUY or SELL: %w", req.Direction, errs.ErrValidationRejected)
	}
	if !s.Policy.Allows(req.Lot) {
		return FireResponse{}, 0, fmt.Errorf("lot %s outside policy bounds [%s, %s]: %w", req.Lot, s.Policy.MinLot, s.Policy.MaxLot, errs.ErrValidationRejected)
	}

	ea, err := s.Store.GetEAInstanceByUserID(ctx, userID)
	if err != nil {
		return FireResponse{}, 0, err
	}
	now := s.Clock.Now()
	if !ea.Fresh(now, model.FreshnessThreshold) {
		return FireResponse{}, 0, fmt.Errorf("EA %s for user %s stale since %s: %w", ea.TargetUUID, userID, ea.LastSeen, errs.ErrRecipientStale)
	}

	idemKey := req.IdemKey
	if idemKey == "" {
		idemKey = model.DeriveIdemKey(userID, req.SignalID, req.Lot, now)
	}

	if existing, err := s.Store.GetFireByIdemKey(ctx, userID, idemKey); err == nil {
		return FireResponse{FireID: existing.FireID, Status: string(model.FireStatusDeduplicated)}, http.StatusOK, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return FireResponse{}, 0, err
	}

	fire := model.Fire{
		FireID:     uuid.NewString(),
		IdemKey:    idemKey,
		UserID:     userID,
		TargetUUID: ea.TargetUUID,
		Symbol:     req.Symbol,
		Direction:  direction,
		Lot:        req.Lot,
		StopLoss:   req.SL,
		TakeProfit: req.TP,
		Comment:    req.Comment,
		Status:     model.FireStatusPending,
		DryRun:     req.DryRun,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.SignalID != "" {
		fire.SignalID = &req.SignalID
	}

	created, err := s.Store.InsertFire(ctx, fire)
	if err != nil {
		return FireResponse{}, 0, err
	}
	if !created {
		existing, err := s.Store.GetFireByIdemKey(ctx, userID, idemKey)
		if err != nil {
			return FireResponse{}, 0, err
		}
		return FireResponse{FireID: existing.FireID, Status: string(model.FireStatusDeduplicated)}, http.StatusOK, nil
	}

	if req.DryRun {
		s.Events.Publish(ctx, uuid.NewString(), string(model.EventFireCommand), correlationID(fire), userID, map[string]any{
			"fire_id": fire.FireID, "user_id": userID, "target_uuid": ea.TargetUUID,
			"symbol": fire.Symbol, "direction": string(fire.Direction), "dry_run": true,
		})
		return FireResponse{FireID: fire.FireID, Status: string(model.FireStatusPending)}, http.StatusAccepted, nil
	}

	if s.Mode == ModeShadow || s.Mode == ModeRedis {
		if _, err := s.Streams(ea.TargetUUID).Append(ctx, fireFields(fire)); err != nil {
			return FireResponse{}, 0, fmt.Errorf("append fire %s to stream: %w: %v", fire.FireID, errs.ErrTransientRemote, err)
		}
	}
	if s.Mode == ModeShadow || s.Mode == ModeLegacy {
		if err := s.IPC.Write(fire); err != nil {
			return FireResponse{}, 0, fmt.Errorf("write fire %s to IPC: %w: %v", fire.FireID, errs.ErrTransientRemote, err)
		}
	}

	if err := s.Store.UpdateFireStatus(ctx, fire.FireID, model.FireStatusEnqueued, "", "", now); err != nil {
		return FireResponse{}, 0, err
	}

	s.Events.Publish(ctx, uuid.NewString(), string(model.EventFireCommand), correlationID(fire), userID, map[string]any{
		"fire_id": fire.FireID, "user_id": userID, "target_uuid": ea.TargetUUID,
		"symbol": fire.Symbol, "direction": string(fire.Direction),
	})

	return FireResponse{FireID: fire.FireID, Status: string(model.FireStatusEnqueued)}, http.StatusAccepted, nil
}

// SubmitSmoke issues a dry_run fire for userID, exercising the same
// validation/EA-lookup/idempotency path handleFire does but without the
// HTTP/JWT layer — the operator CLI's smoke check calls this directly,
// since it acts with administrative authority rather than an end user's
// token (spec §6: "smoke issues a dry_run fire; expects a round-trip
// confirmation without any EA-side execution").
func (s *Server) SubmitSmoke(ctx context.Context, userID, symbol string, lot decimal.Decimal) (FireResponse, error) {
	resp, _, err := s.submit(ctx, userID, FireRequest{
		Symbol:    symbol,
		Direction: string(model.DirectionBuy),
		Lot:       lot,
		DryRun:    true,
	})
	return resp, err
}

func correlationID(f model.Fire) string {
	if f.SignalID != nil && *f.SignalID != "" {
		return *f.SignalID
	}
	return f.FireID
}

func fireFields(f model.Fire) map[string]string {
	signalID := ""
	if f.SignalID != nil {
		signalID = *f.SignalID
	}
	return map[string]string{
		"fire_id":     f.FireID,
		"idem_key":    f.IdemKey,
		"user_id":     f.UserID,
		"signal_id":   signalID,
		"target_uuid": f.TargetUUID,
		"symbol":      f.Symbol,
		"direction":   string(f.Direction),
		"lot":         f.Lot.String(),
		"sl":          f.StopLoss.String(),
		"tp":          f.TakeProfit.String(),
		"dry_run":     strconv.FormatBool(f.DryRun),
		"comment":     f.Comment,
	}
}
