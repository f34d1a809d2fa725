package web

import (
	"net/http"
	"time"

	"telegram-x-monitor/internal/infra/logging"
)

type entityDTO struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
}

type credentialDTO struct {
	ID         string     `json:"id"`
	Authorized bool       `json:"authorized"`
	Remaining  *int       `json:"remaining,omitempty"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
}

type monitorStatusResponse struct {
	Running     bool            `json:"running"`
	Paused      bool            `json:"paused"`
	PausedUntil *time.Time      `json:"paused_until,omitempty"`
	PollSeconds int             `json:"poll_interval_seconds"`
	Watermarks  int             `json:"watermarks"`
	Entities    []entityDTO     `json:"entities"`
	Credentials []credentialDTO `json:"credentials"`
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	st := s.monitor.Status()
	resp := monitorStatusResponse{
		Running:     st.Running,
		Paused:      st.Paused,
		PausedUntil: st.PausedUntil,
		PollSeconds: int(st.PollEvery.Seconds()),
		Watermarks:  st.Watermarks,
		Entities:    make([]entityDTO, 0, len(st.Entities)),
		Credentials: make([]credentialDTO, 0, len(st.Credentials)),
	}
	for _, e := range st.Entities {
		resp.Entities = append(resp.Entities, entityDTO{Username: e.Username, UserID: e.UserID})
	}
	// Tokens never leave the process.
	for _, c := range st.Credentials {
		resp.Credentials = append(resp.Credentials, credentialDTO{
			ID:         string(c.ID),
			Authorized: c.Authorized,
			Remaining:  c.Remaining,
			ResetAt:    c.ResetAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type accountDTO struct {
	Username  string    `json:"username"`
	XUserID   string    `json:"x_user_id"`
	AddedBy   int64     `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accs, err := s.accounts.List(r.Context())
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("list accounts failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to list accounts"})
		return
	}
	out := make([]accountDTO, 0, len(accs))
	for _, a := range accs {
		out = append(out, accountDTO{Username: a.Username, XUserID: a.XUserID, AddedBy: a.AddedBy, CreatedAt: a.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}
