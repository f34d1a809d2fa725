package model

import (
	"time"

	"telegram-x-monitor/internal/domain"

	"github.com/google/uuid"
)

// Role controls which bot commands a Telegram user may run.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
	RolePending    Role = "pending"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleUser, RolePending:
		return true
	}
	return false
}

// IsAdmin reports whether the role may run admin commands.
func (r Role) IsAdmin() bool { return r == RoleAdmin || r == RoleSuperAdmin }

// User is a Telegram user known to the bot.
type User struct {
	ID           string
	TelegramID   int64
	Username     string
	Role         Role
	RegisteredAt time.Time
	UpdatedAt    time.Time
}

func NewUser(id string, tgID int64, username string, role Role) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if role == "" {
		role = RolePending
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{
		ID:           id,
		TelegramID:   tgID,
		Username:     username,
		Role:         role,
		RegisteredAt: now,
		UpdatedAt:    now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

func (u *User) IsAdmin() bool { return u != nil && u.Role.IsAdmin() }

func (u *User) IsSuperAdmin() bool { return u != nil && u.Role == RoleSuperAdmin }

// SetRole changes the role. The super admin role is never demoted through here.
func (u *User) SetRole(role Role) error {
	if !role.Valid() {
		return domain.ErrInvalidArgument
	}
	if u.Role == RoleSuperAdmin && role != RoleSuperAdmin {
		return domain.ErrForbidden
	}
	u.Role = role
	u.UpdatedAt = time.Now()
	return nil
}
