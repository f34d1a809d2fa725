// File: internal/domain/ports/adapter/x.go
package adapter

import (
	"context"
	"time"

	"telegram-x-monitor/internal/domain/model"
)

// OutcomeKind classifies a single X API call.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeUnauthorized
	OutcomeRateLimited
	OutcomeTransient
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "transient"
	}
}

// Quota is the rate-limit state reported by the API response headers.
// ResetAt is nil when the reset header was missing.
type Quota struct {
	Remaining int
	ResetAt   *time.Time
}

// FetchOutcome is the result of one timeline fetch.
// Posts is only set for OutcomeOK and is ordered newest first.
type FetchOutcome struct {
	Kind  OutcomeKind
	Posts []model.Post
	Quota *Quota
	Err   error
}

// XClient talks to the X API with a caller-chosen credential. Implementations never panic
// and report every failure through FetchOutcome.
type XClient interface {
	FetchPosts(ctx context.Context, cred model.Credential, key model.EntityKey, sinceID *model.PostID, max int) FetchOutcome
	LookupUserID(ctx context.Context, cred model.Credential, username string) (string, FetchOutcome)
}
