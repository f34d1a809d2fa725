//go:build !integration

package web

import (
	"context"
	"io"
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

type mockMonitor struct {
	usecase.MonitorUseCase
	StatusFunc func() usecase.MonitorStatus
}

func (m *mockMonitor) Status() usecase.MonitorStatus { return m.StatusFunc() }

type mockAccounts struct {
	usecase.AccountUseCase
	accounts []*model.MonitoredAccount
	ListErr  error
}

func (m *mockAccounts) List(ctx context.Context) ([]*model.MonitoredAccount, error) {
	return m.accounts, m.ListErr
}

func (m *mockAccounts) FindByXUserID(ctx context.Context, xUserID string) (*model.MonitoredAccount, error) {
	for _, a := range m.accounts {
		if a.XUserID == xUserID {
			return a, nil
		}
	}
	return nil, domain.ErrNotFound
}

type delivery struct {
	To   []int64
	Post model.Post
}

type mockDeliverer struct {
	mu  sync.Mutex
	got []delivery
	ch  chan struct{}
}

func newMockDeliverer() *mockDeliverer { return &mockDeliverer{ch: make(chan struct{}, 16)} }

func (m *mockDeliverer) Deliver(ctx context.Context, destinations []int64, post model.Post) {
	m.mu.Lock()
	m.got = append(m.got, delivery{To: destinations, Post: post})
	m.mu.Unlock()
	m.ch <- struct{}{}
}

func (m *mockDeliverer) Deliveries() []delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]delivery(nil), m.got...)
}
