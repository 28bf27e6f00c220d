package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// AccessService decides whether a scanned wristband may pass a gate and
// writes one audit entry per decision.
type AccessService struct {
	tokens     *TokenRegistry
	identities *IdentityDirectory
	gates      *GateRegistry
	events     store.AccessLogStore
	stats      *StatsAggregator
	logger     *zap.Logger
}

func NewAccessService(
	tokens *TokenRegistry,
	identities *IdentityDirectory,
	gates *GateRegistry,
	events store.AccessLogStore,
	stats *StatsAggregator,
	logger *zap.Logger,
) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{
		tokens:     tokens,
		identities: identities,
		gates:      gates,
		events:     events,
		stats:      stats,
		logger:     logger,
	}
}

type decision struct {
	allowed  bool
	code     types.DenyReason
	reason   string
	tokenID  *string
	identity *types.IdentitySummary
}

func deny(code types.DenyReason, reason string) decision {
	return decision{code: code, reason: reason}
}

// CheckAccess runs the decision rules in order and records the outcome.  The
// decision is returned only after its audit entry is stored; a failed audit
// write is returned as an error instead of a decision.
func (s *AccessService) CheckAccess(ctx context.Context, req types.CheckInRequest, operator string) (types.CheckInResponse, error) {
	uid := normalizeUID(req.UID)
	gateKey := strings.TrimSpace(req.Gate)
	dir := req.Direction
	if dir == "" {
		dir = types.DirectionIn
	}
	switch {
	case uid == "":
		return types.CheckInResponse{}, apperr.Validation("uid is required")
	case gateKey == "":
		return types.CheckInResponse{}, apperr.Validation("gate is required")
	case !dir.Valid():
		return types.CheckInResponse{}, apperr.WithMetadata(apperr.CodeValidation, "direction must be in or out",
			map[string]any{"direction": dir})
	}

	ctx, span := tracer.Start(ctx, "AccessService.CheckAccess")
	defer span.End()
	span.SetAttributes(
		attribute.String("wristband.uid", uid),
		attribute.String("gate", gateKey),
		attribute.String("direction", string(dir)),
	)

	gate, gateFound, err := s.gates.Resolve(ctx, gateKey)
	if err != nil {
		span.RecordError(err)
		return types.CheckInResponse{}, fmt.Errorf("resolve gate: %w", err)
	}
	gateName := gateKey
	if gateFound {
		gateName = gate.Name
	}

	d, err := s.decide(ctx, uid, gateKey, gate, gateFound)
	if err != nil {
		span.RecordError(err)
		return types.CheckInResponse{}, err
	}

	now := utcNow()
	entry := types.AccessLogEntry{
		TokenID:     d.tokenID,
		TokenUID:    uid,
		Gate:        gateName,
		Direction:   dir,
		Status:      types.AccessDenied,
		ReasonCode:  d.code,
		Reason:      d.reason,
		Operator:    operator,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		RequestedAt: parseOptionalTimestamp(req.RequestedAt),
		CreatedAt:   now,
	}
	if d.allowed {
		entry.Status = types.AccessAllowed
	}
	if err := s.events.RecordEvent(ctx, &entry); err != nil {
		span.RecordError(err)
		s.logger.Error("access audit write failed",
			zap.String("uid", uid),
			zap.String("gate", gateName),
			zap.String("status", string(entry.Status)),
			zap.Error(err),
		)
		return types.CheckInResponse{}, apperr.Wrap(apperr.CodeInternal, "access decision could not be recorded", err)
	}
	span.SetAttributes(attribute.String("access.status", string(entry.Status)))

	return types.CheckInResponse{
		Status:     entry.Status,
		Allowed:    d.allowed,
		Reason:     d.reason,
		ReasonCode: d.code,
		LogID:      entry.ID,
		UID:        uid,
		Gate:       gateName,
		Direction:  dir,
		Identity:   d.identity,
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}

// decide applies the precedence rules.  It only reads state; errors are
// lookup failures, never denials.
func (s *AccessService) decide(ctx context.Context, uid, gateKey string, gate types.Gate, gateFound bool) (decision, error) {
	tok, ok, err := s.tokens.FindByUID(ctx, uid)
	if err != nil {
		return decision{}, fmt.Errorf("lookup wristband: %w", err)
	}
	if !ok {
		return deny(types.DenyNotRegistered, "not registered"), nil
	}

	d, ident, err := s.holder(ctx, tok)
	if err != nil || d != nil {
		return derefDecision(d), err
	}

	switch {
	case !gateFound:
		return s.withToken(tok, deny(types.DenyUnknownGate, "unknown gate "+gateKey)), nil
	case !gate.IsActive:
		return s.withToken(tok, deny(types.DenyGateInactive, "gate "+gate.Name+" is inactive")), nil
	case !gate.Allows(ident.TicketType):
		return s.withToken(tok, deny(types.DenyTicketRestricted, fmt.Sprintf(
			"ticket type %s is not allowed at %s (allowed: %s)",
			ident.TicketType, gate.Name, joinTicketTypes(gate.AllowedTicketTypes)))), nil
	}

	summary := ident.Summary()
	return s.withToken(tok, decision{allowed: true, reason: "access granted", identity: &summary}), nil
}

// holder checks the wristband status and its identity.  A non-nil decision
// is a denial.
func (s *AccessService) holder(ctx context.Context, tok types.Token) (*decision, types.Identity, error) {
	var d decision
	switch tok.Status {
	case types.TokenBlocked:
		reason := "blocked"
		if tok.BlockReason != "" {
			reason = "blocked: " + tok.BlockReason
		}
		d = deny(types.DenyBlocked, reason)
	case types.TokenLost:
		d = deny(types.DenyLost, types.LostReason)
	case types.TokenReturned:
		d = deny(types.DenyReturned, "wristband returned")
	case types.TokenDamaged:
		d = deny(types.DenyDamaged, "wristband damaged")
	case types.TokenNew:
		d = deny(types.DenyNotActivated, "not activated")
	}
	if d.code == "" && !tok.Linked() {
		d = deny(types.DenyNotActivated, "not activated")
	}
	if d.code != "" {
		d = s.withToken(tok, d)
		return &d, types.Identity{}, nil
	}

	ident, err := s.identities.Get(ctx, *tok.IdentityID)
	if apperr.HasCode(err, apperr.CodeIdentityNotFound) {
		d = s.withToken(tok, deny(types.DenyNotActivated, "not activated"))
		return &d, types.Identity{}, nil
	}
	if err != nil {
		return nil, types.Identity{}, fmt.Errorf("lookup identity: %w", err)
	}
	if !ident.Active() {
		d = s.withToken(tok, deny(types.DenyIdentityInactive, "identity is no longer active"))
		return &d, types.Identity{}, nil
	}
	return nil, ident, nil
}

func (s *AccessService) withToken(tok types.Token, d decision) decision {
	id := tok.ID
	d.tokenID = &id
	return d
}

func derefDecision(d *decision) decision {
	if d == nil {
		return decision{}
	}
	return *d
}

func joinTicketTypes(ts []types.TicketType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// parseOptionalTimestamp parses a terminal-reported timestamp.  Empty or
// unparseable input yields nil.
func parseOptionalTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (s *AccessService) ListEvents(ctx context.Context, f store.AccessLogFilter, page types.Page) ([]types.AccessLogEntry, types.PageInfo, error) {
	page = page.Normalize()
	events, total, err := s.events.ListEvents(ctx, f, page)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	if events == nil {
		events = []types.AccessLogEntry{}
	}
	return events, page.Info(total), nil
}

// Stats folds any new audit entries and returns the aggregate.
func (s *AccessService) Stats(ctx context.Context) (types.AccessStats, error) {
	return s.stats.Refresh(ctx)
}

// GateStats returns every configured gate with its counters.  Gates that
// appear in the log but are no longer configured are omitted.
func (s *AccessService) GateStats(ctx context.Context) ([]types.GateOverview, error) {
	stats, err := s.stats.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	gates, err := s.gates.List(ctx)
	if err != nil {
		return nil, err
	}

	byGate := make(map[string]types.GateStats, len(stats.ByGate))
	for _, gs := range stats.ByGate {
		byGate[strings.ToLower(gs.Gate)] = gs
	}
	out := make([]types.GateOverview, 0, len(gates))
	for _, g := range gates {
		gs, ok := byGate[strings.ToLower(g.Name)]
		if !ok {
			gs = types.GateStats{Gate: g.Name}
		}
		out = append(out, types.GateOverview{Gate: g, Stats: gs})
	}
	return out, nil
}
