package types

import (
	"slices"
	"time"
)

type ZoneType string

const (
	ZoneEntrance  ZoneType = "entrance"
	ZoneExit      ZoneType = "exit"
	ZoneVIP       ZoneType = "vip"
	ZoneBackstage ZoneType = "backstage"
)

func (z ZoneType) Valid() bool {
	switch z {
	case ZoneEntrance, ZoneExit, ZoneVIP, ZoneBackstage:
		return true
	}
	return false
}

// Gate is a physical checkpoint.  An empty AllowedTicketTypes means every
// ticket type may pass.
type Gate struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Code               string       `json:"code,omitempty"`
	ZoneType           ZoneType     `json:"zone_type"`
	AllowedTicketTypes []TicketType `json:"allowed_ticket_types,omitempty"`
	IsActive           bool         `json:"is_active"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func (g Gate) Restricted() bool { return len(g.AllowedTicketTypes) > 0 }

func (g Gate) Allows(t TicketType) bool {
	return !g.Restricted() || slices.Contains(g.AllowedTicketTypes, t)
}
