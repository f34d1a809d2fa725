//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/adapter"
	"telegram-x-monitor/internal/domain/ports/repository"
	"telegram-x-monitor/internal/usecase"
)

// =============================
// Adapters
// =============================

// ---- Mock TelegramBotAdapter ----

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []adapter.SendMessageParams // Capture all sent message parameters

	SendMessageFunc     func(ctx context.Context, params adapter.SendMessageParams) error
	SetMenuCommandsFunc func(ctx context.Context, chatID int64, isAdmin bool) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	if m.SendMessageFunc != nil {
		if err := m.SendMessageFunc(ctx, params); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, params)
	return nil
}

func (m *MockTelegramBot) SetMenuCommands(ctx context.Context, chatID int64, isAdmin bool) error {
	if m.SetMenuCommandsFunc != nil {
		return m.SetMenuCommandsFunc(ctx, chatID, isAdmin)
	}
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MockTelegramBot) Messages() []adapter.SendMessageParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]adapter.SendMessageParams(nil), m.Sent...)
}

// Texts returns sent texts for one chat, in send order.
func (m *MockTelegramBot) Texts(chatID int64) []string {
	var out []string
	for _, p := range m.Messages() {
		if p.ChatID == chatID {
			out = append(out, p.Text)
		}
	}
	return out
}

// ---- Mock XClient ----

type fetchCall struct {
	Cred    model.CredentialID
	Key     model.EntityKey
	SinceID *model.PostID
	Max     int
}

type MockXClient struct {
	mu    sync.Mutex
	Calls []fetchCall

	FetchPostsFunc   func(ctx context.Context, cred model.Credential, key model.EntityKey, sinceID *model.PostID, max int) adapter.FetchOutcome
	LookupUserIDFunc func(ctx context.Context, cred model.Credential, username string) (string, adapter.FetchOutcome)
}

var _ adapter.XClient = (*MockXClient)(nil)

func (m *MockXClient) FetchPosts(ctx context.Context, cred model.Credential, key model.EntityKey, sinceID *model.PostID, max int) adapter.FetchOutcome {
	m.mu.Lock()
	var since *model.PostID
	if sinceID != nil {
		v := *sinceID
		since = &v
	}
	m.Calls = append(m.Calls, fetchCall{Cred: cred.ID, Key: key, SinceID: since, Max: max})
	m.mu.Unlock()
	if m.FetchPostsFunc != nil {
		return m.FetchPostsFunc(ctx, cred, key, sinceID, max)
	}
	return adapter.FetchOutcome{Kind: adapter.OutcomeOK}
}

func (m *MockXClient) LookupUserID(ctx context.Context, cred model.Credential, username string) (string, adapter.FetchOutcome) {
	if m.LookupUserIDFunc != nil {
		return m.LookupUserIDFunc(ctx, cred, username)
	}
	return "", adapter.FetchOutcome{Kind: adapter.OutcomeOK, Err: domain.ErrNotFound}
}

func (m *MockXClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *MockXClient) CallsSnapshot() []fetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]fetchCall(nil), m.Calls...)
}

// =============================
// Repositories
// =============================

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu   sync.Mutex
	byTG map[int64]*model.User

	SaveFunc             func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByTelegramIDFunc func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error)
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{byTG: map[int64]*model.User{}}
}

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, u)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.byTG[cp.TelegramID] = &cp
	return nil
}

func (r *MockUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if r.FindByTelegramIDFunc != nil {
		return r.FindByTelegramIDFunc(ctx, tx, tgID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byTG[tgID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) Delete(ctx context.Context, tx repository.Tx, tgID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byTG[tgID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.byTG, tgID)
	return nil
}

func (r *MockUserRepo) ListByRoles(ctx context.Context, tx repository.Tx, roles ...model.Role) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[model.Role]bool{}
	for _, role := range roles {
		want[role] = true
	}
	var out []*model.User
	for _, u := range r.byTG {
		if want[u.Role] {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

// ---- Mock AccessRequestRepository ----

type MockAccessRequestRepo struct {
	mu   sync.Mutex
	byID map[string]*model.AccessRequest
}

var _ repository.AccessRequestRepository = (*MockAccessRequestRepo)(nil)

func NewMockAccessRequestRepo() *MockAccessRequestRepo {
	return &MockAccessRequestRepo{byID: map[string]*model.AccessRequest{}}
}

func (r *MockAccessRequestRepo) Save(ctx context.Context, tx repository.Tx, req *model.AccessRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.byID[cp.ID] = &cp
	return nil
}

func (r *MockAccessRequestRepo) FindPending(ctx context.Context, tx repository.Tx, tgID int64) (*model.AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.byID {
		if req.TelegramID == tgID && req.Status == model.AccessPending {
			cp := *req
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockAccessRequestRepo) DeletePending(ctx context.Context, tx repository.Tx, tgID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, req := range r.byID {
		if req.TelegramID == tgID && req.Status == model.AccessPending {
			delete(r.byID, id)
		}
	}
	return nil
}

func (r *MockAccessRequestRepo) All() []model.AccessRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AccessRequest
	for _, req := range r.byID {
		out = append(out, *req)
	}
	return out
}

// ---- Mock AccountRepository ----

type MockAccountRepo struct {
	mu    sync.Mutex
	items []*model.MonitoredAccount

	SaveFunc func(ctx context.Context, tx repository.Tx, a *model.MonitoredAccount) error
}

var _ repository.AccountRepository = (*MockAccountRepo)(nil)

func NewMockAccountRepo() *MockAccountRepo { return &MockAccountRepo{} }

func (r *MockAccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.MonitoredAccount) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, a)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.Username == a.Username {
			return domain.ErrAlreadyExists
		}
	}
	cp := *a
	r.items = append(r.items, &cp)
	return nil
}

func (r *MockAccountRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.MonitoredAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.Username == username {
			cp := *it
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockAccountRepo) FindByXUserID(ctx context.Context, tx repository.Tx, xUserID string) (*model.MonitoredAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.XUserID == xUserID {
			cp := *it
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockAccountRepo) List(ctx context.Context, tx repository.Tx) ([]*model.MonitoredAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.MonitoredAccount, 0, len(r.items))
	for _, it := range r.items {
		cp := *it
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MockAccountRepo) Delete(ctx context.Context, tx repository.Tx, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, it := range r.items {
		if it.Username == username {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// =============================
// Use case doubles
// =============================

// ---- Mock MonitorUseCase ----

type MockMonitor struct {
	mu       sync.Mutex
	Added    []model.EntityKey
	Removed  []model.EntityKey
	Running  bool
	Started  [][]model.EntityKey
	StopHits int

	ResolveUserIDFunc func(ctx context.Context, username string) (string, error)
}

var _ usecase.MonitorUseCase = (*MockMonitor)(nil)

func (m *MockMonitor) Start(ctx context.Context, keys []model.EntityKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Running {
		return false
	}
	m.Running = true
	m.Started = append(m.Started, keys)
	return true
}

func (m *MockMonitor) Stop(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopHits++
	if !m.Running {
		return false
	}
	m.Running = false
	return true
}

func (m *MockMonitor) AddEntity(ctx context.Context, key model.EntityKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Added = append(m.Added, key)
}

func (m *MockMonitor) RemoveEntity(key model.EntityKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removed = append(m.Removed, key)
}

func (m *MockMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Running
}

func (m *MockMonitor) Status() usecase.MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return usecase.MonitorStatus{Running: m.Running}
}

func (m *MockMonitor) ResolveUserID(ctx context.Context, username string) (string, error) {
	if m.ResolveUserIDFunc != nil {
		return m.ResolveUserIDFunc(ctx, username)
	}
	return "", domain.ErrNotFound
}

// ---- Static destinations ----

type staticDestinations struct {
	admins      []int64
	superAdmins []int64
}

func (d staticDestinations) AdminChatIDs(ctx context.Context) ([]int64, error) {
	return d.admins, nil
}

func (d staticDestinations) SuperAdminChatIDs(ctx context.Context) ([]int64, error) {
	return d.superAdmins, nil
}

// =============================
// Infra helpers for tests
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	return fn(ctx, repository.NoTX)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// newTestDispatcher delivers through bot with no retry delay.
func newTestDispatcher(bot adapter.TelegramBotAdapter) *usecase.Dispatcher {
	return usecase.NewDispatcher(bot, time.UTC, newTestLogger(),
		usecase.WithDeliveryConcurrency(2),
		usecase.WithDeliveryRetry(2, time.Millisecond))
}

func mustCredential(id model.CredentialID) *model.Credential {
	c, err := model.NewCredential(id, "token-"+string(id))
	if err != nil {
		panic(err)
	}
	return c
}
