//go:build !integration

package application_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// keyTranslator renders "key" or "key:arg1,arg2" so assertions do not depend on locale text.
type keyTranslator struct{}

func (keyTranslator) T(key string, args ...interface{}) string {
	if len(args) == 0 {
		return key
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return key + ":" + strings.Join(parts, ",")
}

type notice struct {
	To   []int64
	Text string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) Notify(ctx context.Context, destinations []int64, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{To: destinations, Text: text})
}

func (n *recordingNotifier) All() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

// mockUserUC keeps users in a map; the Func fields override individual calls.
type mockUserUC struct {
	users map[int64]*model.User

	RequestAccessFunc func(ctx context.Context, tgID int64) (*model.AccessRequest, error)
	ApproveFunc       func(ctx context.Context, actorID, tgID int64) (*model.User, error)
	DenyFunc          func(ctx context.Context, actorID, tgID int64) error
	PromoteFunc       func(ctx context.Context, tgID int64) (*model.User, error)
	RevokeFunc        func(ctx context.Context, tgID int64) (*model.User, error)
}

var _ usecase.UserUseCase = (*mockUserUC)(nil)

func newMockUserUC(users ...*model.User) *mockUserUC {
	m := &mockUserUC{users: map[int64]*model.User{}}
	for _, u := range users {
		m.users[u.TelegramID] = u
	}
	return m
}

func (m *mockUserUC) RegisterOrFetch(ctx context.Context, tgID int64, username string) (*model.User, error) {
	if u, ok := m.users[tgID]; ok {
		return u, nil
	}
	u := &model.User{ID: fmt.Sprint(tgID), TelegramID: tgID, Username: username, Role: model.RolePending}
	m.users[tgID] = u
	return u, nil
}

func (m *mockUserUC) GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error) {
	if u, ok := m.users[tgID]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockUserUC) EnsureSuperAdmin(ctx context.Context, tgID int64) error { return nil }

func (m *mockUserUC) RequestAccess(ctx context.Context, tgID int64) (*model.AccessRequest, error) {
	if m.RequestAccessFunc != nil {
		return m.RequestAccessFunc(ctx, tgID)
	}
	return &model.AccessRequest{ID: "req", TelegramID: tgID, Status: model.AccessPending}, nil
}

func (m *mockUserUC) Approve(ctx context.Context, actorID, tgID int64) (*model.User, error) {
	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, actorID, tgID)
	}
	return &model.User{TelegramID: tgID, Role: model.RoleUser}, nil
}

func (m *mockUserUC) Deny(ctx context.Context, actorID, tgID int64) error {
	if m.DenyFunc != nil {
		return m.DenyFunc(ctx, actorID, tgID)
	}
	return nil
}

func (m *mockUserUC) Promote(ctx context.Context, tgID int64) (*model.User, error) {
	if m.PromoteFunc != nil {
		return m.PromoteFunc(ctx, tgID)
	}
	return &model.User{TelegramID: tgID, Role: model.RoleAdmin}, nil
}

func (m *mockUserUC) Revoke(ctx context.Context, tgID int64) (*model.User, error) {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, tgID)
	}
	return &model.User{TelegramID: tgID, Role: model.RoleUser}, nil
}

func (m *mockUserUC) AdminChatIDs(ctx context.Context) ([]int64, error) {
	var out []int64
	for id, u := range m.users {
		if u.IsAdmin() {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *mockUserUC) SuperAdminChatIDs(ctx context.Context) ([]int64, error) {
	var out []int64
	for id, u := range m.users {
		if u.IsSuperAdmin() {
			out = append(out, id)
		}
	}
	return out, nil
}

type mockAccountUC struct {
	AddFunc    func(ctx context.Context, actorID int64, username string) (*model.MonitoredAccount, error)
	RemoveFunc func(ctx context.Context, username string) error
	accounts   []*model.MonitoredAccount
	listErr    error
}

var _ usecase.AccountUseCase = (*mockAccountUC)(nil)

func (m *mockAccountUC) Add(ctx context.Context, actorID int64, username string) (*model.MonitoredAccount, error) {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, actorID, username)
	}
	acc := &model.MonitoredAccount{ID: username, Username: username, XUserID: "1", AddedBy: actorID}
	m.accounts = append(m.accounts, acc)
	return acc, nil
}

func (m *mockAccountUC) Remove(ctx context.Context, username string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, username)
	}
	return nil
}

func (m *mockAccountUC) List(ctx context.Context) ([]*model.MonitoredAccount, error) {
	return m.accounts, m.listErr
}

func (m *mockAccountUC) Keys(ctx context.Context) ([]model.EntityKey, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	keys := make([]model.EntityKey, 0, len(m.accounts))
	for _, a := range m.accounts {
		keys = append(keys, model.EntityKey{Username: a.Username, UserID: a.XUserID})
	}
	return keys, nil
}

func (m *mockAccountUC) FindByXUserID(ctx context.Context, xUserID string) (*model.MonitoredAccount, error) {
	for _, a := range m.accounts {
		if a.XUserID == xUserID {
			return a, nil
		}
	}
	return nil, domain.ErrNotFound
}

type mockMonitor struct {
	running bool
	started []model.EntityKey
	status  usecase.MonitorStatus
}

var _ usecase.MonitorUseCase = (*mockMonitor)(nil)

func (m *mockMonitor) Start(ctx context.Context, keys []model.EntityKey) bool {
	if m.running {
		return false
	}
	m.running, m.started = true, keys
	return true
}

func (m *mockMonitor) Stop(ctx context.Context) bool {
	was := m.running
	m.running = false
	return was
}

func (m *mockMonitor) AddEntity(ctx context.Context, key model.EntityKey) {}
func (m *mockMonitor) RemoveEntity(key model.EntityKey)                   {}
func (m *mockMonitor) IsRunning() bool                                    { return m.running }
func (m *mockMonitor) Status() usecase.MonitorStatus                      { return m.status }

func (m *mockMonitor) ResolveUserID(ctx context.Context, username string) (string, error) {
	return "", domain.ErrNotFound
}
