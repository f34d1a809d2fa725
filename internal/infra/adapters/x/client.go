// Package x is the X API v2 client used by the polling loop.
package x

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/adapter"
	"telegram-x-monitor/internal/infra/metrics"
)

const (
	DefaultBaseURL = "https://api.twitter.com/2"

	headerRemaining = "x-rate-limit-remaining"
	headerReset     = "x-rate-limit-reset"

	tweetFields = "created_at,text,conversation_id,in_reply_to_user_id"
	// 401 and 429 bodies are small JSON problems; cap what we read.
	maxBodyBytes = 1 << 20
)

var _ adapter.XClient = (*Client)(nil)

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

// Client implements adapter.XClient. Only transient failures (network, 5xx,
// undecodable bodies) count against the circuit breaker; 401, 404 and 429 are
// answers from a healthy API.
type Client struct {
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zerolog.Logger
}

func NewClient(opts Options, logger *zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	l := logger.With().Str("component", "x_client").Logger()

	failures := opts.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "x-api",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetXBreakerOpen(to == gobreaker.StateOpen)
			l.Warn().Str("circuit", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		breaker: cb,
		log:     &l,
	}
}

// response is what survives the breaker: any HTTP answer that is not transient.
type response struct {
	status int
	header http.Header
	body   []byte
}

type tweetsPayload struct {
	Data []struct {
		ID              string    `json:"id"`
		Text            string    `json:"text"`
		CreatedAt       time.Time `json:"created_at"`
		InReplyToUserID string    `json:"in_reply_to_user_id"`
	} `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NewestID    string `json:"newest_id"`
	} `json:"meta"`
}

type userPayload struct {
	Data *struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
}

// FetchPosts returns the newest posts of key, newest first, excluding retweets.
// Posts at or below sinceID are dropped even if the API echoes them back.
func (c *Client) FetchPosts(ctx context.Context, cred model.Credential, key model.EntityKey, sinceID *model.PostID, max int) adapter.FetchOutcome {
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(clampPage(max)))
	q.Set("tweet.fields", tweetFields)
	q.Set("exclude", "retweets")
	if sinceID != nil {
		q.Set("since_id", sinceID.String())
	}
	endpoint := "/users/" + url.PathEscape(key.UserID) + "/tweets"

	resp, out := c.do(ctx, cred, "tweets", endpoint, q)
	if out != nil {
		return *out
	}
	quota := parseQuota(resp.header)

	var payload tweetsPayload
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return adapter.FetchOutcome{Kind: adapter.OutcomeTransient, Quota: quota, Err: fmt.Errorf("decode tweets: %w", err)}
	}
	posts := make([]model.Post, 0, len(payload.Data))
	for _, d := range payload.Data {
		id, err := model.ParsePostID(d.ID)
		if err != nil {
			c.log.Warn().Err(err).Str("account", key.Username).Msg("skipping post with bad id")
			continue
		}
		posts = append(posts, model.Post{
			ID:        id,
			Text:      d.Text,
			CreatedAt: d.CreatedAt,
			IsReply:   d.InReplyToUserID != "",
			Author:    key,
		})
	}
	sortNewestFirst(posts)
	if sinceID != nil {
		posts = model.PostsAfter(posts, *sinceID)
	}
	return adapter.FetchOutcome{Kind: adapter.OutcomeOK, Posts: posts, Quota: quota}
}

// LookupUserID resolves a username. An unknown user is OutcomeOK with Err set to domain.ErrNotFound.
func (c *Client) LookupUserID(ctx context.Context, cred model.Credential, username string) (string, adapter.FetchOutcome) {
	username = model.NormalizeUsername(username)
	endpoint := "/users/by/username/" + url.PathEscape(username)

	resp, out := c.do(ctx, cred, "user_lookup", endpoint, nil)
	if out != nil {
		if out.Kind == adapter.OutcomeTransient && errors.Is(out.Err, domain.ErrNotFound) {
			return "", adapter.FetchOutcome{Kind: adapter.OutcomeOK, Err: domain.ErrNotFound}
		}
		return "", *out
	}
	quota := parseQuota(resp.header)

	var payload userPayload
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return "", adapter.FetchOutcome{Kind: adapter.OutcomeTransient, Quota: quota, Err: fmt.Errorf("decode user: %w", err)}
	}
	// X answers 200 with an errors array for unknown usernames
	if payload.Data == nil || payload.Data.ID == "" {
		return "", adapter.FetchOutcome{Kind: adapter.OutcomeOK, Quota: quota, Err: domain.ErrNotFound}
	}
	return payload.Data.ID, adapter.FetchOutcome{Kind: adapter.OutcomeOK, Quota: quota}
}

// do performs one GET. A nil outcome means resp holds a 200 answer.
func (c *Client) do(ctx context.Context, cred model.Credential, name, endpoint string, q url.Values) (*response, *adapter.FetchOutcome) {
	start := time.Now()
	u := c.base + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+cred.Token)
		req.Header.Set("Accept", "application/json")

		hr, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer hr.Body.Close()
		body, err := io.ReadAll(io.LimitReader(hr.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if hr.StatusCode >= 500 {
			return nil, fmt.Errorf("x api http %d", hr.StatusCode)
		}
		return &response{status: hr.StatusCode, header: hr.Header, body: body}, nil
	})

	outcome := func(o adapter.FetchOutcome) (*response, *adapter.FetchOutcome) {
		metrics.ObserveXRequest(name, o.Kind.String(), time.Since(start).Seconds())
		return nil, &o
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		return outcome(adapter.FetchOutcome{Kind: adapter.OutcomeTransient, Err: err})
	}

	resp := res.(*response)
	switch {
	case resp.status == http.StatusOK:
		metrics.ObserveXRequest(name, adapter.OutcomeOK.String(), time.Since(start).Seconds())
		return resp, nil
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return outcome(adapter.FetchOutcome{
			Kind: adapter.OutcomeUnauthorized,
			Err:  fmt.Errorf("x api http %d: %s", resp.status, snippet(resp.body)),
		})
	case resp.status == http.StatusTooManyRequests:
		quota := parseQuota(resp.header)
		if quota == nil {
			quota = &adapter.Quota{}
		}
		quota.Remaining = 0
		return outcome(adapter.FetchOutcome{Kind: adapter.OutcomeRateLimited, Quota: quota, Err: errors.New("x api http 429")})
	case resp.status == http.StatusNotFound:
		return outcome(adapter.FetchOutcome{Kind: adapter.OutcomeTransient, Err: domain.ErrNotFound})
	default:
		return outcome(adapter.FetchOutcome{
			Kind: adapter.OutcomeTransient,
			Err:  fmt.Errorf("x api http %d: %s", resp.status, snippet(resp.body)),
		})
	}
}

// parseQuota reads the rate-limit headers; nil when remaining is absent.
func parseQuota(h http.Header) *adapter.Quota {
	rem := h.Get(headerRemaining)
	if rem == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(rem))
	if err != nil {
		return nil
	}
	q := &adapter.Quota{Remaining: n}
	if reset := h.Get(headerReset); reset != "" {
		if secs, err := strconv.ParseInt(strings.TrimSpace(reset), 10, 64); err == nil {
			t := time.Unix(secs, 0).UTC()
			q.ResetAt = &t
		}
	}
	return q
}

// the timeline endpoint accepts 5..100
func clampPage(n int) int {
	switch {
	case n < 5:
		return 5
	case n > 100:
		return 100
	}
	return n
}

func sortNewestFirst(posts []model.Post) {
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].ID > posts[j].ID })
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
