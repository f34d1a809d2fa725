package usecase

import (
	"time"

	"telegram-x-monitor/internal/domain/model"
)

// CredentialRotator picks which X credential to use for the next request and
// tracks per-credential authorization and quota.
//
// It is not safe for concurrent use; monitorUC guards it with its mutex.
type CredentialRotator struct {
	creds   []*model.Credential
	current int
	now     func() time.Time
	// claimed is set once the exhaustion notice for the current empty set was handed out.
	claimed bool
}

// NewCredentialRotator keeps the given order as priority order. The first
// credential counts as the prior choice, so with everything authorized the
// first call to Next returns the second credential.
func NewCredentialRotator(creds ...*model.Credential) *CredentialRotator {
	return &CredentialRotator{creds: creds, now: time.Now}
}

// SetClock replaces time.Now when judging whether a recorded reset has passed.
func (r *CredentialRotator) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Len is the number of configured credentials, authorized or not.
func (r *CredentialRotator) Len() int { return len(r.creds) }

// Next returns the credential for the next request.
// All authorized: strict alternation. Some authorized: first one in priority order.
// None: false. Either way a credential that is out of quota until a future reset is
// passed over while another authorized one still has requests left.
func (r *CredentialRotator) Next() (model.Credential, bool) {
	now := r.now()
	var authorized, usable []int
	for i, c := range r.creds {
		if !c.Authorized {
			continue
		}
		authorized = append(authorized, i)
		if !spentUntilReset(c, now) {
			usable = append(usable, i)
		}
	}
	if len(authorized) == 0 {
		return model.Credential{}, false
	}
	if len(usable) == 0 {
		usable = authorized
	}

	if len(authorized) == len(r.creds) {
		for step := 1; step <= len(r.creds); step++ {
			i := (r.current + step) % len(r.creds)
			if contains(usable, i) {
				r.current = i
				break
			}
		}
	} else {
		r.current = usable[0]
	}
	return *r.creds[r.current], true
}

func spentUntilReset(c *model.Credential, now time.Time) bool {
	if !c.QuotaExhausted() {
		return false
	}
	return c.ResetAt == nil || now.Before(*c.ResetAt)
}

func contains(idx []int, i int) bool {
	for _, v := range idx {
		if v == i {
			return true
		}
	}
	return false
}

// MarkUnauthorized flags a credential as permanently unusable. It returns true only
// when this call emptied the authorized set.
func (r *CredentialRotator) MarkUnauthorized(id model.CredentialID) bool {
	c := r.find(id)
	if c == nil || !c.Authorized {
		return false
	}
	c.Authorized = false
	return !r.anyAuthorized()
}

// ClaimExhaustion returns true for the first caller after the authorized set became empty.
func (r *CredentialRotator) ClaimExhaustion() bool {
	if r.anyAuthorized() || r.claimed {
		return false
	}
	r.claimed = true
	return true
}

func (r *CredentialRotator) RecordRateLimit(id model.CredentialID, remaining int, resetAt *time.Time) {
	c := r.find(id)
	if c == nil {
		return
	}
	c.Remaining = &remaining
	if resetAt != nil {
		t := *resetAt
		c.ResetAt = &t
	}
}

// QuotaExhausted reports whether every credential last reported zero remaining requests.
func (r *CredentialRotator) QuotaExhausted() bool {
	if len(r.creds) == 0 {
		return false
	}
	for _, c := range r.creds {
		if !c.QuotaExhausted() {
			return false
		}
	}
	return true
}

// ResetTimes returns each credential's known reset time, nil where unknown.
func (r *CredentialRotator) ResetTimes() []*time.Time {
	out := make([]*time.Time, len(r.creds))
	for i, c := range r.creds {
		if c.ResetAt != nil {
			t := *c.ResetAt
			out[i] = &t
		}
	}
	return out
}

// ResetQuota forgets all recorded quota; called after a pause has waited out the reset.
func (r *CredentialRotator) ResetQuota() {
	for _, c := range r.creds {
		c.Remaining = nil
		c.ResetAt = nil
	}
}

// Snapshot returns copies of the credentials with tokens blanked.
func (r *CredentialRotator) Snapshot() []model.Credential {
	out := make([]model.Credential, 0, len(r.creds))
	for _, c := range r.creds {
		cp := *c
		cp.Token = ""
		if c.Remaining != nil {
			v := *c.Remaining
			cp.Remaining = &v
		}
		if c.ResetAt != nil {
			t := *c.ResetAt
			cp.ResetAt = &t
		}
		out = append(out, cp)
	}
	return out
}

func (r *CredentialRotator) find(id model.CredentialID) *model.Credential {
	for _, c := range r.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (r *CredentialRotator) anyAuthorized() bool {
	for _, c := range r.creds {
		if c.Authorized {
			return true
		}
	}
	return false
}
