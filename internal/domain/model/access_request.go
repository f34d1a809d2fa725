package model

import (
	"time"

	"telegram-x-monitor/internal/domain"

	"github.com/oklog/ulid/v2"
)

type AccessRequestStatus string

const (
	AccessPending  AccessRequestStatus = "pending"
	AccessApproved AccessRequestStatus = "approved"
	AccessDenied   AccessRequestStatus = "denied"
)

// AccessRequest is a pending user's request to be granted the user role.
type AccessRequest struct {
	ID          string
	TelegramID  int64
	Username    string
	Status      AccessRequestStatus
	ProcessedBy *int64
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

func NewAccessRequest(tgID int64, username string) (*AccessRequest, error) {
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &AccessRequest{
		ID:         ulid.Make().String(),
		TelegramID: tgID,
		Username:   username,
		Status:     AccessPending,
		CreatedAt:  time.Now(),
	}, nil
}

// Resolve records the admin decision. Only pending requests can be resolved.
func (r *AccessRequest) Resolve(status AccessRequestStatus, by int64) error {
	if r.Status != AccessPending {
		return domain.ErrNoPendingRequest
	}
	if status != AccessApproved && status != AccessDenied {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	r.Status = status
	r.ProcessedBy = &by
	r.ProcessedAt = &now
	return nil
}
