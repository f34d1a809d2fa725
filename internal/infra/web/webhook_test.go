//go:build !integration

package web

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/infra/worker"
)

const webhookSecret = "webhook-secret"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (f *serverFixture) postWebhook(t *testing.T, body, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/x/webhook", strings.NewReader(body))
	require.NoError(t, err)
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f *serverFixture) waitDeliveries(t *testing.T, n int) []delivery {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.deliverer.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i+1)
		}
	}
	return f.deliverer.Deliveries()
}

func TestWebhook_CRC(t *testing.T) {
	f := newServerFixture(t)

	resp := f.get(t, "/x/webhook?crc_token=challenge", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte("challenge"))
	assert.Equal(t, "sha256="+base64.StdEncoding.EncodeToString(mac.Sum(nil)), body["response_token"])

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/x/webhook", "").StatusCode)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	f := newServerFixture(t)
	body := `{"tweet_create_events":[]}`

	assert.Equal(t, http.StatusBadRequest, f.postWebhook(t, body, "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.postWebhook(t, body, sign(body+" ")).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.postWebhook(t, "{", sign("{")).StatusCode, "malformed json")
	assert.Equal(t, http.StatusOK, f.postWebhook(t, body, sign(body)).StatusCode)
}

func TestWebhook_DeliversToAccountOwner(t *testing.T) {
	f := newServerFixture(t)
	body := `{
		"for_user_id": "12",
		"tweet_create_events": [
			{
				"id_str": "1001",
				"text": "short",
				"extended_tweet": {"full_text": "the full text"},
				"created_at": "Wed Oct 10 20:19:24 +0000 2018",
				"in_reply_to_status_id_str": "999",
				"user": {"id_str": "12", "screen_name": "Jack"}
			},
			{
				"id_str": "1002",
				"text": "someone else",
				"created_at": "Wed Oct 10 20:19:25 +0000 2018",
				"user": {"id_str": "77", "screen_name": "stranger"}
			},
			{"id_str": "not-a-number", "user": {"id_str": "12"}}
		]
	}`

	resp := f.postWebhook(t, body, sign(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := f.waitDeliveries(t, 1)
	require.Len(t, got, 1)
	assert.Equal(t, []int64{7}, got[0].To)
	assert.Equal(t, model.Post{
		ID:        1001,
		Text:      "the full text",
		CreatedAt: time.Date(2018, 10, 10, 20, 19, 24, 0, time.UTC),
		IsReply:   true,
		Author:    model.EntityKey{Username: "jack", UserID: "12"},
	}, normalizeTime(got[0].Post))

	select {
	case <-f.deliverer.ch:
		t.Fatal("post from an untracked author was delivered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebhook_BatchIsQueuedWholeOrRefused(t *testing.T) {
	pool := worker.NewPool(1, 2, newTestLogger())
	f := newServerFixtureWithPool(t, pool)
	require.NoError(t, pool.Submit("filler", func(context.Context) error { return nil }))

	batch := func(ids ...string) string {
		events := make([]string, 0, len(ids))
		for _, id := range ids {
			events = append(events, `{"id_str":"`+id+`","text":"t","user":{"id_str":"12","screen_name":"jack"}}`)
		}
		return `{"for_user_id":"12","tweet_create_events":[` + strings.Join(events, ",") + `]}`
	}

	first := batch("1001", "1002")
	require.Equal(t, http.StatusOK, f.postWebhook(t, first, sign(first)).StatusCode, "the whole batch takes one queue slot")
	second := batch("2001", "2002")
	require.Equal(t, http.StatusServiceUnavailable, f.postWebhook(t, second, sign(second)).StatusCode)

	pool.Start(context.Background())
	got := f.waitDeliveries(t, 2)
	assert.Equal(t, model.PostID(1001), got[0].Post.ID)
	assert.Equal(t, model.PostID(1002), got[1].Post.ID)

	select {
	case <-f.deliverer.ch:
		t.Fatal("part of the refused batch was relayed")
	case <-time.After(100 * time.Millisecond):
	}
}

func normalizeTime(p model.Post) model.Post {
	p.CreatedAt = p.CreatedAt.UTC()
	return p
}
