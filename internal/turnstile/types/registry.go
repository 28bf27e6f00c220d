package types

type RegisterRequest struct {
	UID       string `json:"uid"`
	BatchCode string `json:"batch_code,omitempty"`
}

// AssignRequest links a wristband to an existing identity (IdentityID) or to
// one created in the same unit of work (Identity).
type AssignRequest struct {
	UID        string       `json:"uid"`
	IdentityID string       `json:"identity_id,omitempty"`
	Identity   *NewIdentity `json:"identity,omitempty"`
}

type AssignResponse struct {
	Token    Token    `json:"token"`
	Identity Identity `json:"identity"`
	Account  Account  `json:"account"`
}

type BlockRequest struct {
	Reason string `json:"reason"`
}

// TokenStatusView is the status snapshot served to operators.
type TokenStatusView struct {
	Found     bool             `json:"found"`
	UID       string           `json:"uid"`
	Status    TokenStatus      `json:"status,omitempty"`
	CanAccess bool             `json:"can_access"`
	Token     *Token           `json:"token,omitempty"`
	Identity  *IdentitySummary `json:"identity,omitempty"`
	Account   *Account         `json:"account,omitempty"`
}
