package types

import "time"

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

func (d Direction) Valid() bool { return d == DirectionIn || d == DirectionOut }

type AccessStatus string

const (
	AccessAllowed AccessStatus = "allowed"
	AccessDenied  AccessStatus = "denied"
)

// DenyReason is the closed set of reasons a scan can be denied.
type DenyReason string

const (
	DenyNotRegistered    DenyReason = "NOT_REGISTERED"
	DenyBlocked          DenyReason = "BLOCKED"
	DenyLost             DenyReason = "LOST"
	DenyReturned         DenyReason = "RETURNED"
	DenyDamaged          DenyReason = "DAMAGED"
	DenyNotActivated     DenyReason = "NOT_ACTIVATED"
	DenyIdentityInactive DenyReason = "IDENTITY_INACTIVE"
	DenyUnknownGate      DenyReason = "UNKNOWN_GATE"
	DenyGateInactive     DenyReason = "GATE_INACTIVE"
	DenyTicketRestricted DenyReason = "TICKET_TYPE_RESTRICTED"
)

// AccessLogEntry is one immutable audit record of a checkpoint decision.
// TokenID is nil when the scanned uid is not registered.
type AccessLogEntry struct {
	ID          int64        `json:"id"`
	TokenID     *string      `json:"token_id,omitempty"`
	TokenUID    string       `json:"token_uid"`
	Gate        string       `json:"gate"`
	Direction   Direction    `json:"direction"`
	Status      AccessStatus `json:"status"`
	ReasonCode  DenyReason   `json:"reason_code,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Operator    string       `json:"operator,omitempty"`
	Latitude    *float64     `json:"latitude,omitempty"`
	Longitude   *float64     `json:"longitude,omitempty"`
	RequestedAt *time.Time   `json:"requested_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

type CheckInRequest struct {
	UID         string    `json:"uid"`
	Gate        string    `json:"gate"`
	Direction   Direction `json:"direction,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	RequestedAt string    `json:"requested_at,omitempty"` // optional terminal timestamp
}

type CheckInResponse struct {
	Status     AccessStatus     `json:"status"`
	Allowed    bool             `json:"allowed"`
	Reason     string           `json:"reason"`
	ReasonCode DenyReason       `json:"reason_code,omitempty"`
	LogID      int64            `json:"log_id"`
	UID        string           `json:"uid"`
	Gate       string           `json:"gate"`
	Direction  Direction        `json:"direction"`
	Identity   *IdentitySummary `json:"identity,omitempty"`
	ServerTime string           `json:"server_time"`
}

// GateStats are the per-gate counters derived from the audit log.
type GateStats struct {
	Gate        string     `json:"gate"`
	Allowed     int        `json:"allowed"`
	Denied      int        `json:"denied"`
	Entries     int        `json:"entries"`
	Exits       int        `json:"exits"`
	LastEventAt *time.Time `json:"last_event_at,omitempty"`
}

type HourStats struct {
	Hour    time.Time `json:"hour"`
	Allowed int       `json:"allowed"`
	Denied  int       `json:"denied"`
}

// AccessStats aggregates the audit log.  CurrentlyInside is allowed entries
// minus allowed exits and is an approximation: a missed exit scan inflates it.
type AccessStats struct {
	GeneratedAt     time.Time          `json:"generated_at"`
	Total           int                `json:"total"`
	Allowed         int                `json:"allowed"`
	Denied          int                `json:"denied"`
	Entries         int                `json:"entries"`
	Exits           int                `json:"exits"`
	CurrentlyInside int                `json:"currently_inside"`
	ByGate          []GateStats        `json:"by_gate"`
	ByHour          []HourStats        `json:"by_hour"`
	DenialsByReason map[DenyReason]int `json:"denials_by_reason"`
	LastLogID       int64              `json:"last_log_id"`
	// Partial is set when the scan hit its time budget before the end of
	// the log.
	Partial bool `json:"partial"`
}

// GateOverview is a configured gate together with its counters.
type GateOverview struct {
	Gate
	Stats GateStats `json:"stats"`
}
