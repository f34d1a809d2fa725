package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/infra/worker"
	"telegram-x-monitor/internal/usecase"
)

// PostDeliverer relays one post to Telegram chats; *usecase.Dispatcher implements it.
type PostDeliverer interface {
	Deliver(ctx context.Context, destinations []int64, post model.Post)
}

type Deps struct {
	Monitor   usecase.MonitorUseCase
	Accounts  usecase.AccountUseCase
	Deliverer PostDeliverer
	Pool      *worker.Pool
	// Auth guards /api/v1; nil leaves the admin API unmounted.
	Auth *AuthManager
	// WebhookSecret signs X webhook traffic; empty leaves /x/webhook unmounted.
	WebhookSecret string
}

// Server exposes health, metrics, the X webhook and the admin API.
type Server struct {
	monitor   usecase.MonitorUseCase
	accounts  usecase.AccountUseCase
	deliverer PostDeliverer
	pool      *worker.Pool
	auth      *AuthManager
	secret    []byte
	log       *zerolog.Logger
}

func NewServer(deps Deps, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http").Logger()
	return &Server{
		monitor:   deps.Monitor,
		accounts:  deps.Accounts,
		deliverer: deps.Deliverer,
		pool:      deps.Pool,
		auth:      deps.Auth,
		secret:    []byte(deps.WebhookSecret),
		log:       &l,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, TraceID, RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if len(s.secret) > 0 && s.pool != nil {
		r.Get("/x/webhook", s.handleCRC)
		r.Post("/x/webhook", s.handleWebhook)
	}
	if s.auth != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/monitor/status", s.handleMonitorStatus)
			r.Get("/accounts", s.handleListAccounts)
		})
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
