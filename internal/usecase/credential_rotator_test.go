//go:build !integration

package usecase_test

import (
	"testing"
	"time"

	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/usecase"
)

func nextID(t *testing.T, r *usecase.CredentialRotator) model.CredentialID {
	t.Helper()
	c, ok := r.Next()
	if !ok {
		t.Fatal("expected a credential, got none")
	}
	return c.ID
}

func TestCredentialRotator_Next(t *testing.T) {
	t.Run("alternates strictly when all authorized, starting with the second", func(t *testing.T) {
		r := usecase.NewCredentialRotator(mustCredential("dy"), mustCredential("dx"))
		var got []model.CredentialID
		for i := 0; i < 4; i++ {
			got = append(got, nextID(t, r))
		}
		want := []model.CredentialID{"dx", "dy", "dx", "dy"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("sequence = %v, want %v", got, want)
			}
		}
	})

	t.Run("returns the remaining authorized credential every time", func(t *testing.T) {
		r := usecase.NewCredentialRotator(mustCredential("dy"), mustCredential("dx"))
		r.MarkUnauthorized("dx")
		for i := 0; i < 3; i++ {
			if id := nextID(t, r); id != "dy" {
				t.Fatalf("call %d: got %s, want dy", i, id)
			}
		}
	})

	t.Run("returns none when no credential is authorized", func(t *testing.T) {
		r := usecase.NewCredentialRotator(mustCredential("dy"), mustCredential("dx"))
		r.MarkUnauthorized("dy")
		r.MarkUnauthorized("dx")
		if _, ok := r.Next(); ok {
			t.Fatal("expected no credential")
		}
	})
}

func TestCredentialRotator_NextPassesOverSpentQuota(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reset := now.Add(10 * time.Minute)

	r := usecase.NewCredentialRotator(mustCredential("dy"), mustCredential("dx"))
	r.SetClock(func() time.Time { return now })
	r.RecordRateLimit("dy", 0, &reset)
	for i := 0; i < 3; i++ {
		if id := nextID(t, r); id != "dx" {
			t.Fatalf("call %d: got %s, want dx while dy waits for its reset", i, id)
		}
	}

	r.RecordRateLimit("dx", 0, nil)
	if _, ok := r.Next(); !ok {
		t.Fatal("spent credentials are still handed out when nothing else is left")
	}

	now = reset.Add(time.Second)
	r.RecordRateLimit("dx", 5, nil)
	got := []model.CredentialID{nextID(t, r), nextID(t, r)}
	if got[0] == got[1] {
		t.Fatalf("alternation should resume after the reset passed, got %v", got)
	}
}

func TestCredentialRotator_PartialSetPrefersCredentialWithQuota(t *testing.T) {
	r := usecase.NewCredentialRotator(mustCredential("a"), mustCredential("b"), mustCredential("c"))
	r.MarkUnauthorized("c")
	r.RecordRateLimit("a", 0, nil)
	if id := nextID(t, r); id != "b" {
		t.Fatalf("got %s, want b", id)
	}
}

func TestCredentialRotator_MarkUnauthorizedSignalsOnce(t *testing.T) {
	r := usecase.NewCredentialRotator(mustCredential("dy"), mustCredential("dx"))
	if r.MarkUnauthorized("dy") {
		t.Fatal("first credential failing must not signal exhaustion")
	}
	if r.MarkUnauthorized("dy") {
		t.Fatal("re-marking is a no-op")
	}
	if !r.MarkUnauthorized("dx") {
		t.Fatal("expected exhaustion signal when the last credential fails")
	}
	if r.MarkUnauthorized("dx") {
		t.Fatal("exhaustion must be signalled only once")
	}
	if r.MarkUnauthorized("unknown") {
		t.Fatal("unknown id must not signal")
	}

	if !r.ClaimExhaustion() {
		t.Fatal("first claim should succeed")
	}
	if r.ClaimExhaustion() {
		t.Fatal("second claim must fail")
	}
}

func TestCredentialRotator_ClaimRequiresEmptySet(t *testing.T) {
	r := usecase.NewCredentialRotator(mustCredential("dy"))
	if r.ClaimExhaustion() {
		t.Fatal("claim must fail while a credential is authorized")
	}
}

func TestCredentialRotator_Quota(t *testing.T) {
	r := usecase.NewCredentialRotator(mustCredential("dy"), mustCredential("dx"))
	if r.QuotaExhausted() {
		t.Fatal("unknown quota is not exhausted")
	}

	reset := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.RecordRateLimit("dy", 0, &reset)
	if r.QuotaExhausted() {
		t.Fatal("only one credential is at zero")
	}
	r.RecordRateLimit("dx", 0, nil)
	if !r.QuotaExhausted() {
		t.Fatal("both credentials at zero must be exhausted")
	}

	resets := r.ResetTimes()
	if len(resets) != 2 || resets[0] == nil || !resets[0].Equal(reset) || resets[1] != nil {
		t.Fatalf("unexpected reset times: %v", resets)
	}

	snap := r.Snapshot()
	if snap[0].Token != "" {
		t.Error("snapshot must not expose tokens")
	}
	if snap[0].Remaining == nil || *snap[0].Remaining != 0 {
		t.Errorf("snapshot remaining = %v", snap[0].Remaining)
	}

	r.ResetQuota()
	if r.QuotaExhausted() {
		t.Fatal("quota must be cleared after reset")
	}
	for _, rt := range r.ResetTimes() {
		if rt != nil {
			t.Fatal("reset times must be cleared")
		}
	}
}
