package types

import (
	"strings"
	"time"
)

type TicketType string

const (
	TicketStandard  TicketType = "standard"
	TicketVIP       TicketType = "vip"
	TicketBackstage TicketType = "backstage"
	TicketStaff     TicketType = "staff"
	TicketPress     TicketType = "press"
)

func (t TicketType) Valid() bool {
	switch t {
	case TicketStandard, TicketVIP, TicketBackstage, TicketStaff, TicketPress:
		return true
	}
	return false
}

type IdentityState string

const (
	IdentityActive      IdentityState = "active"
	IdentitySoftDeleted IdentityState = "soft_deleted"
	IdentityAnonymized  IdentityState = "anonymized"
)

// Identity is an attendee or staff record.  Erasure never removes the row:
// soft deletion flags it, anonymization additionally clears every PII field.
type Identity struct {
	ID               string        `json:"id"`
	FirstName        string        `json:"first_name"`
	LastName         string        `json:"last_name"`
	Email            *string       `json:"email,omitempty"`
	Phone            *string       `json:"phone,omitempty"`
	TicketType       TicketType    `json:"ticket_type"`
	MarketingConsent bool          `json:"marketing_consent"`
	State            IdentityState `json:"state"`
	DeletedAt        *time.Time    `json:"deleted_at,omitempty"`
	AnonymizedAt     *time.Time    `json:"anonymized_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (i Identity) Active() bool { return i.State == IdentityActive }

func (i Identity) DisplayName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// Summary is the projection handed to gate terminals.
func (i Identity) Summary() IdentitySummary {
	return IdentitySummary{Name: i.DisplayName(), TicketType: i.TicketType}
}

func (i *Identity) SoftDelete(at time.Time) {
	if i.State != IdentityActive {
		return
	}
	i.State = IdentitySoftDeleted
	i.DeletedAt = &at
	i.UpdatedAt = at
}

func (i *Identity) Anonymize(at time.Time) {
	i.FirstName = ""
	i.LastName = ""
	i.Email = nil
	i.Phone = nil
	i.MarketingConsent = false
	if i.DeletedAt == nil {
		i.DeletedAt = &at
	}
	i.State = IdentityAnonymized
	i.AnonymizedAt = &at
	i.UpdatedAt = at
}

// IdentitySummary carries no contact data.
type IdentitySummary struct {
	Name       string     `json:"name"`
	TicketType TicketType `json:"ticket_type"`
}

// NewIdentity is the payload for creating an identity.
type NewIdentity struct {
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	TicketType       TicketType `json:"ticket_type"`
	MarketingConsent bool       `json:"marketing_consent"`
}
