package model

import (
	"strings"
	"time"

	"telegram-x-monitor/internal/domain"

	"github.com/oklog/ulid/v2"
)

const profileBaseURL = "https://twitter.com/"

// EntityKey identifies a monitored X account. It is comparable and used as a map key.
type EntityKey struct {
	Username string
	UserID   string
}

func (k EntityKey) String() string { return "@" + k.Username }

func (k EntityKey) ProfileURL() string { return profileBaseURL + k.Username }

// NormalizeUsername strips surrounding space and a leading "@".
func NormalizeUsername(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}

// MonitoredAccount is an X account registered for relaying.
type MonitoredAccount struct {
	ID        string
	Username  string
	XUserID   string
	AddedBy   int64
	WebhookID string
	CreatedAt time.Time
}

func NewMonitoredAccount(username, xUserID string, addedBy int64) (*MonitoredAccount, error) {
	username = NormalizeUsername(username)
	if username == "" || xUserID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &MonitoredAccount{
		ID:        ulid.Make().String(),
		Username:  username,
		XUserID:   xUserID,
		AddedBy:   addedBy,
		CreatedAt: time.Now(),
	}, nil
}

func (a *MonitoredAccount) Key() EntityKey {
	return EntityKey{Username: a.Username, UserID: a.XUserID}
}
