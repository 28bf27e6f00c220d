package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

type GateRegistry struct {
	store  store.GateStore
	logger *zap.Logger
}

func NewGateRegistry(st store.GateStore, logger *zap.Logger) *GateRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GateRegistry{store: st, logger: logger}
}

// Upsert creates or replaces the gate with g.Name.
func (r *GateRegistry) Upsert(ctx context.Context, g types.Gate) (types.Gate, error) {
	g.Name = strings.TrimSpace(g.Name)
	g.Code = strings.TrimSpace(g.Code)
	if g.Name == "" {
		return types.Gate{}, apperr.Validation("gate name is required")
	}
	if g.ZoneType == "" {
		g.ZoneType = types.ZoneEntrance
	}
	if !g.ZoneType.Valid() {
		return types.Gate{}, apperr.WithMetadata(apperr.CodeValidation, "unknown zone_type",
			map[string]any{"zone_type": g.ZoneType})
	}
	var allowed []types.TicketType
	for _, t := range g.AllowedTicketTypes {
		if !t.Valid() {
			return types.Gate{}, apperr.WithMetadata(apperr.CodeValidation, "unknown ticket type in whitelist",
				map[string]any{"ticket_type": t})
		}
		if !slices.Contains(allowed, t) {
			allowed = append(allowed, t)
		}
	}
	g.AllowedTicketTypes = allowed

	if err := r.store.UpsertGate(ctx, &g); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Gate{}, apperr.WithMetadata(apperr.CodeConflict, "gate name or code already in use",
				map[string]any{"name": g.Name, "code": g.Code})
		}
		return types.Gate{}, storeErr(err, apperr.CodeGateNotFound, "gate")
	}
	return g, nil
}

// Resolve finds a gate by name or code.  An unknown gate is ok=false.
func (r *GateRegistry) Resolve(ctx context.Context, nameOrCode string) (types.Gate, bool, error) {
	key := strings.TrimSpace(nameOrCode)
	if key == "" {
		return types.Gate{}, false, nil
	}
	return found(r.store.GateByName(ctx, key))
}

func (r *GateRegistry) List(ctx context.Context) ([]types.Gate, error) {
	return r.store.ListGates(ctx)
}

// DevGates are the gates a dev server starts with: a public "Main"
// entrance and a "Backstage" gate for backstage and staff tickets.  The
// SQLite dev seed creates the same two.
func DevGates() []types.Gate {
	return []types.Gate{
		{Name: "Main", Code: "MAIN", ZoneType: types.ZoneEntrance, IsActive: true},
		{Name: "Backstage", Code: "BS", ZoneType: types.ZoneBackstage, IsActive: true,
			AllowedTicketTypes: []types.TicketType{types.TicketBackstage, types.TicketStaff}},
	}
}

// SeedDev creates the DevGates that do not exist yet.  Existing gates are
// left alone.  It returns how many were created.
func (r *GateRegistry) SeedDev(ctx context.Context) (int, error) {
	n := 0
	for _, g := range DevGates() {
		_, ok, err := r.Resolve(ctx, g.Name)
		if err != nil {
			return n, err
		}
		if ok {
			continue
		}
		if _, err := r.Upsert(ctx, g); err != nil {
			return n, fmt.Errorf("seed gate %s: %w", g.Name, err)
		}
		n++
	}
	return n, nil
}

type gateFile struct {
	Gates []struct {
		Name               string   `yaml:"name"`
		Code               string   `yaml:"code"`
		Zone               string   `yaml:"zone"`
		AllowedTicketTypes []string `yaml:"allowed_ticket_types"`
		Active             *bool    `yaml:"active"`
	} `yaml:"gates"`
}

// LoadFile upserts every gate listed in a YAML file of the form
//
//	gates:
//	  - name: Backstage
//	    code: BS
//	    zone: backstage
//	    allowed_ticket_types: [backstage, staff]
//
// Gates are active unless active: false is given.
func (r *GateRegistry) LoadFile(ctx context.Context, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read gates file: %w", err)
	}
	var f gateFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return 0, fmt.Errorf("parse gates file %s: %w", path, err)
	}

	for i, fg := range f.Gates {
		g := types.Gate{
			Name:     fg.Name,
			Code:     fg.Code,
			ZoneType: types.ZoneType(strings.ToLower(fg.Zone)),
			IsActive: fg.Active == nil || *fg.Active,
		}
		for _, t := range fg.AllowedTicketTypes {
			g.AllowedTicketTypes = append(g.AllowedTicketTypes, types.TicketType(strings.ToLower(strings.TrimSpace(t))))
		}
		if _, err := r.Upsert(ctx, g); err != nil {
			return i, fmt.Errorf("gate %d (%s): %w", i, fg.Name, err)
		}
	}
	r.logger.Info("gates loaded", zap.String("path", path), zap.Int("count", len(f.Gates)))
	return len(f.Gates), nil
}
