//go:build !integration

package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"telegram-x-monitor/internal/application"
	"telegram-x-monitor/internal/config"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/infra/db/sqlite"
	"telegram-x-monitor/internal/infra/i18n"
	"telegram-x-monitor/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// apiCall is one request received by the fake Bot API.
type apiCall struct {
	Method string
	Form   url.Values
}

// fakeBotAPI answers Bot API methods; Fail lets a test return an error envelope per method.
type fakeBotAPI struct {
	mu    sync.Mutex
	calls []apiCall
	Fail  map[string]string
	srv   *httptest.Server
}

func newFakeBotAPI(t *testing.T) *fakeBotAPI {
	t.Helper()
	f := &fakeBotAPI{Fail: map[string]string{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBotAPI) endpoint() string { return f.srv.URL + "/bot%s/%s" }

func (f *fakeBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	parts := strings.Split(r.URL.Path, "/")
	method := parts[len(parts)-1]

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Form: r.PostForm})
	failure, failing := f.Fail[method]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failing {
		_, _ = io.WriteString(w, failure)
		return
	}
	switch method {
	case "getMe":
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Monitor","username":"monitor_bot"}}`)
	case "sendMessage":
		chat := r.PostForm.Get("chat_id")
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":%s,"type":"private"}}}`, chat)
	default:
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeBotAPI) Calls(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Texts returns the text of every sendMessage addressed to chatID.
func (f *fakeBotAPI) Texts(chatID int64) []string {
	var out []string
	for _, c := range f.Calls("sendMessage") {
		if c.Form.Get("chat_id") == fmt.Sprint(chatID) {
			out = append(out, c.Form.Get("text"))
		}
	}
	return out
}

func decodeKeyboard(t *testing.T, raw string) map[string][][]map[string]string {
	t.Helper()
	var kb map[string][][]map[string]string
	require.NoError(t, json.Unmarshal([]byte(raw), &kb))
	return kb
}

// fakeMonitor is an in-memory usecase.MonitorUseCase.
type fakeMonitor struct {
	mu      sync.Mutex
	running bool
	keys    []model.EntityKey
	ids     map[string]string
}

var _ usecase.MonitorUseCase = (*fakeMonitor)(nil)

func (m *fakeMonitor) Start(ctx context.Context, keys []model.EntityKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return false
	}
	m.running, m.keys = true, keys
	return true
}

func (m *fakeMonitor) Stop(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	was := m.running
	m.running = false
	return was
}

func (m *fakeMonitor) AddEntity(ctx context.Context, key model.EntityKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
}

func (m *fakeMonitor) RemoveEntity(key model.EntityKey) {}

func (m *fakeMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *fakeMonitor) Status() usecase.MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return usecase.MonitorStatus{Running: m.running, Entities: m.keys}
}

func (m *fakeMonitor) ResolveUserID(ctx context.Context, username string) (string, error) {
	if id, ok := m.ids[username]; ok {
		return id, nil
	}
	return "", fmt.Errorf("unknown %s", username)
}

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, destinations []int64, text string) {}

// botFixture wires a real adapter against the fake API and a facade over an in-memory store.
type botFixture struct {
	api     *fakeBotAPI
	bot     *RealTelegramBotAdapter
	facade  *application.BotFacade
	monitor *fakeMonitor
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	api := newFakeBotAPI(t)
	tr, err := i18n.NewTranslator(i18n.LocalesFS, i18n.DefaultLanguage)
	require.NoError(t, err)

	bot, err := NewRealTelegramBotAdapter(&config.BotConfig{
		Token:       "TOKEN",
		APIEndpoint: api.endpoint(),
		Workers:     1,
		SendPerSec:  1000,
	}, tr, newTestLogger())
	require.NoError(t, err)

	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mon := &fakeMonitor{ids: map[string]string{"jack": "12"}}
	userUC := usecase.NewUserUseCase(store.Users(), store.AccessRequests(), store.TxManager(), newTestLogger())
	accountUC := usecase.NewAccountUseCase(store.Accounts(), mon, newTestLogger())
	facade := application.NewBotFacade(userUC, accountUC, mon, nopNotifier{}, tr, newTestLogger())

	bot.mu.Lock()
	bot.facade = facade
	bot.mu.Unlock()
	return &botFixture{api: api, bot: bot, facade: facade, monitor: mon}
}
