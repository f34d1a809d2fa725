package web

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/infra/logging"
	"telegram-x-monitor/internal/infra/metrics"
)

const (
	signatureHeader = "x-twitter-webhooks-signature"
	maxWebhookBody  = 1 << 20
	// created_at in account activity payloads.
	activityTimeLayout = time.RubyDate
)

type activityPayload struct {
	ForUserID         string       `json:"for_user_id"`
	TweetCreateEvents []tweetEvent `json:"tweet_create_events"`
}

type tweetEvent struct {
	IDStr                string `json:"id_str"`
	Text                 string `json:"text"`
	CreatedAt            string `json:"created_at"`
	InReplyToStatusIDStr string `json:"in_reply_to_status_id_str"`
	ExtendedTweet        *struct {
		FullText string `json:"full_text"`
	} `json:"extended_tweet"`
	User struct {
		IDStr      string `json:"id_str"`
		ScreenName string `json:"screen_name"`
	} `json:"user"`
}

func (e tweetEvent) post() (model.Post, error) {
	id, err := model.ParsePostID(e.IDStr)
	if err != nil {
		return model.Post{}, err
	}
	text := e.Text
	if e.ExtendedTweet != nil && e.ExtendedTweet.FullText != "" {
		text = e.ExtendedTweet.FullText
	}
	// An unparseable timestamp is left zero; formatting falls back to the delivery time.
	created, _ := time.Parse(activityTimeLayout, e.CreatedAt)
	return model.Post{
		ID:        id,
		Text:      text,
		CreatedAt: created,
		IsReply:   e.InReplyToStatusIDStr != "",
		Author:    model.EntityKey{Username: e.User.ScreenName, UserID: e.User.IDStr},
	}, nil
}

// crcResponse answers X's challenge: base64 HMAC-SHA256 of the token.
func crcResponse(secret []byte, token string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(token))
	return "sha256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// validSignature compares "sha256=<hex>" of the body in constant time.
func validSignature(secret, body []byte, header string) bool {
	if header == "" {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

func (s *Server) handleCRC(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("crc_token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing crc_token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response_token": crcResponse(s.secret, token)})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body"})
		return
	}
	if !validSignature(s.secret, body, r.Header.Get(signatureHeader)) {
		metrics.IncWebhookEvent("invalid_signature")
		log.Warn().Msg("webhook signature mismatch")
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid signature"})
		return
	}

	var payload activityPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.IncWebhookEvent("malformed")
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed payload"})
		return
	}

	posts := make([]model.Post, 0, len(payload.TweetCreateEvents))
	for _, ev := range payload.TweetCreateEvents {
		post, err := ev.post()
		if err != nil {
			metrics.IncWebhookEvent("malformed")
			log.Warn().Err(err).Str("id", ev.IDStr).Msg("skipping webhook event")
			continue
		}
		posts = append(posts, post)
	}
	if len(posts) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	// One task per payload: a refused batch is redelivered whole, never half relayed.
	if err := s.pool.Submit("webhook_batch", func(ctx context.Context) error {
		var errs []error
		for _, post := range posts {
			if err := s.relay(ctx, post); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}); err != nil {
		metrics.IncWebhookEvent("dropped")
		log.Error().Err(err).Int("posts", len(posts)).Msg("webhook batch dropped")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "busy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// relay sends a pushed post to whoever added the account; posts from untracked authors are ignored.
func (s *Server) relay(ctx context.Context, post model.Post) error {
	acc, err := s.accounts.FindByXUserID(ctx, post.Author.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncWebhookEvent("ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup author %s: %w", post.Author.UserID, err)
	}
	post.Author.Username = acc.Username
	s.deliverer.Deliver(ctx, []int64{acc.AddedBy}, post)
	metrics.IncWebhookEvent("accepted")
	metrics.AddPostsRelayed("webhook", 1)
	return nil
}
