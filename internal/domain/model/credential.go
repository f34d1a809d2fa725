package model

import (
	"time"

	"telegram-x-monitor/internal/domain"
)

// CredentialID names one of the configured X API bearer tokens, e.g. "dy" or "dx".
type CredentialID string

// Credential is a bearer token plus its last observed quota.
// Authorized only ever goes from true to false.
type Credential struct {
	ID         CredentialID
	Token      string
	Authorized bool
	Remaining  *int
	ResetAt    *time.Time
}

func NewCredential(id CredentialID, token string) (*Credential, error) {
	if id == "" || token == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Credential{ID: id, Token: token, Authorized: true}, nil
}

// QuotaExhausted reports whether the last response said no requests remain.
func (c *Credential) QuotaExhausted() bool {
	return c.Remaining != nil && *c.Remaining == 0
}
