package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"telegram-x-monitor/internal/domain"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/adapter"
	"telegram-x-monitor/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ MonitorUseCase = (*monitorUC)(nil)

// noActivity marks an account whose seeding page was empty.
const noActivity model.PostID = 0

const (
	msgMonitorStarting = "🔔 Starting tweet monitoring process..."
	msgMonitorStopped  = "🔕 Monitoring has been stopped."
	msgMonitorResumed  = "▶️ Resuming monitoring after rate limit reset"
	msgAllUnauthorized = "🚫 All tokens unauthorized - monitoring stopped"

	stopNoticeTimeout = 10 * time.Second
)

var errCredentialsExhausted = errors.New("all credentials unauthorized")

type MonitorUseCase interface {
	// Start launches the polling loop for keys. Returns false if it is already running.
	Start(ctx context.Context, keys []model.EntityKey) bool
	// Stop cancels the loop and waits for it to finish. Returns false if it was not running,
	// or if ctx ended first and the loop may still be winding down.
	Stop(ctx context.Context) bool
	AddEntity(ctx context.Context, key model.EntityKey)
	RemoveEntity(key model.EntityKey)
	IsRunning() bool
	Status() MonitorStatus
	ResolveUserID(ctx context.Context, username string) (string, error)
}

// DestinationProvider lists chats that receive relayed posts and notices.
type DestinationProvider interface {
	AdminChatIDs(ctx context.Context) ([]int64, error)
	SuperAdminChatIDs(ctx context.Context) ([]int64, error)
}

// MonitorSettings tunes the polling loop.
type MonitorSettings struct {
	PollInterval  time.Duration
	WarnThreshold int
	PageSize      int
	InitPageSize  int
	PauseMin      time.Duration
	PauseMax      time.Duration
	PauseDefault  time.Duration
	PauseBuffer   time.Duration
}

func DefaultMonitorSettings() MonitorSettings {
	return MonitorSettings{
		PollInterval:  60 * time.Second,
		WarnThreshold: 10,
		PageSize:      10,
		InitPageSize:  5,
		PauseMin:      5 * time.Minute,
		PauseMax:      60 * time.Minute,
		PauseDefault:  15 * time.Minute,
		PauseBuffer:   5 * time.Second,
	}
}

// MonitorStatus is a point-in-time view of the loop for reports and the admin API.
type MonitorStatus struct {
	Running     bool               `json:"running"`
	Paused      bool               `json:"paused"`
	PausedUntil *time.Time         `json:"paused_until,omitempty"`
	Entities    []model.EntityKey  `json:"entities"`
	Watermarks  int                `json:"watermarks"`
	Credentials []model.Credential `json:"credentials"`
	PollEvery   time.Duration      `json:"poll_interval"`
}

// PauseDuration is how long to wait when every credential is out of quota:
// the earliest known reset minus now, clamped to [lo, hi]; def when no reset is known.
func PauseDuration(now time.Time, resets []*time.Time, lo, hi, def time.Duration) time.Duration {
	var earliest *time.Time
	for _, r := range resets {
		if r == nil {
			continue
		}
		if earliest == nil || r.Before(*earliest) {
			earliest = r
		}
	}
	if earliest == nil {
		return def
	}
	d := earliest.Sub(now)
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type MonitorOption func(*monitorUC)

// WithClock overrides time.Now and the cancellable sleep; used by tests.
func WithClock(now func() time.Time, sleep SleepFunc) MonitorOption {
	return func(m *monitorUC) {
		if now != nil {
			m.now = now
		}
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

type monitorUC struct {
	x        adapter.XClient
	dispatch *Dispatcher
	dests    DestinationProvider
	settings MonitorSettings
	log      *zerolog.Logger
	now      func() time.Time
	sleep    SleepFunc

	mu          sync.Mutex
	rotator     *CredentialRotator
	marks       *WatermarkStore
	entities    []model.EntityKey
	running     bool
	paused      bool
	pausedUntil time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewMonitorUseCase(
	x adapter.XClient,
	rotator *CredentialRotator,
	dispatch *Dispatcher,
	dests DestinationProvider,
	settings MonitorSettings,
	logger *zerolog.Logger,
	opts ...MonitorOption,
) *monitorUC {
	l := logger.With().Str("component", "monitor").Logger()
	m := &monitorUC{
		x:        x,
		dispatch: dispatch,
		dests:    dests,
		settings: settings,
		log:      &l,
		now:      time.Now,
		sleep:    sleepCtx,
		rotator:  rotator,
		marks:    NewWatermarkStore(),
	}
	for _, o := range opts {
		o(m)
	}
	rotator.SetClock(m.now)
	return m
}

func (m *monitorUC) Start(ctx context.Context, keys []model.EntityKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return false
	}
	m.entities = dedupeKeys(keys)
	keep := make(map[model.EntityKey]struct{}, len(m.entities))
	for _, k := range m.entities {
		keep[k] = struct{}{}
	}
	for _, k := range m.marks.Keys() {
		if _, ok := keep[k]; !ok {
			m.marks.Delete(k)
		}
	}

	// The loop outlives the caller's request; only values are inherited.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	m.running = true
	m.cancel = cancel
	m.done = done
	metrics.SetMonitorRunning(true)
	metrics.SetTrackedEntities(len(m.entities))

	go m.run(loopCtx, done)
	return true
}

func (m *monitorUC) Stop(ctx context.Context) bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		m.log.Warn().Msg("stop timed out waiting for the monitoring loop")
		return false
	}
}

func (m *monitorUC) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *monitorUC) Status() MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := MonitorStatus{
		Running:     m.running,
		Paused:      m.paused,
		Entities:    append([]model.EntityKey(nil), m.entities...),
		Watermarks:  m.marks.Len(),
		Credentials: m.rotator.Snapshot(),
		PollEvery:   m.settings.PollInterval,
	}
	if m.paused {
		t := m.pausedUntil
		st.PausedUntil = &t
	}
	return st
}

// AddEntity starts tracking key. While running the account is initialized before
// it joins the tick set, so it is never fetched without a watermark.
func (m *monitorUC) AddEntity(ctx context.Context, key model.EntityKey) {
	m.mu.Lock()
	if m.tracked(key) {
		m.mu.Unlock()
		return
	}
	if !m.running {
		m.entities = append(m.entities, key)
		metrics.SetTrackedEntities(len(m.entities))
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if err := m.initialize(ctx, key); err != nil {
		m.log.Warn().Err(err).Str("account", key.String()).Msg("initialization failed while adding account")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.tracked(key) {
		m.entities = append(m.entities, key)
		metrics.SetTrackedEntities(len(m.entities))
	}
}

func (m *monitorUC) RemoveEntity(key model.EntityKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, k := range m.entities {
		if k == key {
			m.entities = append(m.entities[:i:i], m.entities[i+1:]...)
			break
		}
	}
	m.marks.Delete(key)
	metrics.SetTrackedEntities(len(m.entities))
}

// ResolveUserID looks up the X user id for username with the next credential.
func (m *monitorUC) ResolveUserID(ctx context.Context, username string) (string, error) {
	cred, ok := m.nextCredential()
	if !ok {
		return "", domain.ErrNoCredentials
	}
	id, out := m.x.LookupUserID(ctx, cred, username)
	if m.handleOutcome(ctx, cred, out) == actionExhausted {
		m.exhausted(ctx)
	}
	switch out.Kind {
	case adapter.OutcomeOK:
		if out.Err != nil {
			return "", out.Err
		}
		return id, nil
	case adapter.OutcomeUnauthorized:
		return "", domain.ErrCredentialUnauthorized
	case adapter.OutcomeRateLimited:
		return "", domain.ErrRateLimited
	default:
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, out.Err)
	}
}

// ----- loop -----

func (m *monitorUC) run(ctx context.Context, done chan struct{}) {
	defer m.finish(done)

	m.notifyAdmins(ctx, msgMonitorStarting)
	for _, key := range m.snapshotEntities() {
		if ctx.Err() != nil {
			return
		}
		if err := m.initialize(ctx, key); errors.Is(err, errCredentialsExhausted) {
			return
		}
	}
	m.notifyAdmins(ctx, m.statusSummary())

	for {
		if err := m.safeTick(ctx); errors.Is(err, errCredentialsExhausted) {
			return
		}
		if err := m.sleep(ctx, m.settings.PollInterval); err != nil {
			return
		}
	}
}

func (m *monitorUC) finish(done chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), stopNoticeTimeout)
	m.notifyAdmins(ctx, msgMonitorStopped)
	cancel()

	m.mu.Lock()
	m.running = false
	m.paused = false
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()
	metrics.SetMonitorRunning(false)
	m.log.Info().Msg("monitoring loop stopped")
	close(done)
}

func (m *monitorUC) safeTick(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			m.log.Error().Interface("panic", rec).Msg("recovered panic in monitoring tick")
			err = nil
		}
	}()
	return m.tick(ctx)
}

func (m *monitorUC) tick(ctx context.Context) error {
	metrics.IncMonitorTick()
	cred, ok := m.nextCredential()
	if !ok {
		m.exhausted(ctx)
		return errCredentialsExhausted
	}

	for _, key := range m.snapshotEntities() {
		if ctx.Err() != nil {
			return nil
		}
		since, hasMark := m.watermark(key)
		if !hasMark {
			// Seeding failed earlier; never fetch an unseeded account as new activity.
			if err := m.initialize(ctx, key); errors.Is(err, errCredentialsExhausted) {
				return err
			}
			continue
		}

		var sinceID *model.PostID
		if since != noActivity {
			sinceID = &since
		}
		var (
			out adapter.FetchOutcome
			act outcomeAction
		)
		cred, out, act = m.fetch(ctx, cred, key, sinceID, m.settings.PageSize)
		switch act {
		case actionExhausted:
			m.exhausted(ctx)
			return errCredentialsExhausted
		case actionPause:
			m.pause(ctx)
			return nil
		}
		if out.Kind != adapter.OutcomeOK {
			continue
		}
		posts := model.PostsAfter(out.Posts, since)
		if len(posts) == 0 {
			continue
		}
		out.Posts = posts
		if !m.advance(key, model.MaxPostID(out.Posts)) {
			continue
		}
		m.log.Info().Str("account", key.String()).Int("posts", len(out.Posts)).Msg("new activity")
		metrics.AddPostsRelayed("poll", len(out.Posts))
		m.dispatch.DeliverAll(ctx, m.adminDestinations(ctx), out.Posts)
	}
	return nil
}

// initialize seeds the watermark for key with one fetch. When the page holds both an
// original post and a reply, the newest of each is announced.
func (m *monitorUC) initialize(ctx context.Context, key model.EntityKey) error {
	if _, ok := m.watermark(key); ok {
		return nil
	}
	cred, ok := m.nextCredential()
	if !ok {
		m.exhausted(ctx)
		return errCredentialsExhausted
	}
	_, out, act := m.fetch(ctx, cred, key, nil, m.settings.InitPageSize)
	if act == actionExhausted {
		m.exhausted(ctx)
		return errCredentialsExhausted
	}
	if out.Kind != adapter.OutcomeOK {
		m.log.Warn().Str("account", key.String()).Str("outcome", out.Kind.String()).Msg("could not seed watermark")
		return nil
	}
	if len(out.Posts) == 0 {
		// Seeded with nothing: the next tick fetches without since_id and relays whatever appears.
		m.mu.Lock()
		m.marks.Set(key, noActivity)
		m.mu.Unlock()
		m.log.Info().Str("account", key.String()).Msg("no recent activity to seed watermark")
		return nil
	}

	latest := model.MaxPostID(out.Posts)
	m.mu.Lock()
	m.marks.Set(key, latest)
	m.mu.Unlock()

	var newestPost, newestReply *model.Post
	for i := range out.Posts {
		p := &out.Posts[i]
		if p.IsReply && newestReply == nil {
			newestReply = p
		}
		if !p.IsReply && newestPost == nil {
			newestPost = p
		}
	}
	if newestPost != nil && newestReply != nil {
		announce := []model.Post{*newestPost, *newestReply}
		if newestReply.ID > newestPost.ID {
			announce[0], announce[1] = *newestReply, *newestPost
		}
		metrics.AddPostsRelayed("init", len(announce))
		m.dispatch.DeliverAll(ctx, m.adminDestinations(ctx), announce)
	}
	m.log.Info().Str("account", key.String()).Str("latest_id", latest.String()).Msg("initialized monitoring")
	return nil
}

// fetch runs one timeline request, moving to the next credential on actionSwitch and
// retrying the same account, at most once per configured credential. It returns the
// credential to keep using for the rest of the tick.
func (m *monitorUC) fetch(ctx context.Context, cred model.Credential, key model.EntityKey, sinceID *model.PostID, max int) (model.Credential, adapter.FetchOutcome, outcomeAction) {
	m.mu.Lock()
	attempts := m.rotator.Len()
	m.mu.Unlock()

	for {
		out := m.x.FetchPosts(ctx, cred, key, sinceID, max)
		act := m.handleOutcome(ctx, cred, out)
		if act != actionSwitch {
			return cred, out, act
		}
		attempts--
		next, ok := m.nextCredential()
		if !ok {
			return cred, out, actionExhausted
		}
		cred = next
		if attempts <= 0 || ctx.Err() != nil {
			return cred, out, actionNone
		}
	}
}

type outcomeAction int

const (
	actionNone outcomeAction = iota
	actionSwitch
	actionPause
	actionExhausted
)

func (m *monitorUC) handleOutcome(ctx context.Context, cred model.Credential, out adapter.FetchOutcome) outcomeAction {
	metrics.IncFetchOutcome(string(cred.ID), out.Kind.String())
	switch out.Kind {
	case adapter.OutcomeOK:
		if out.Quota == nil {
			return actionNone
		}
		exhausted := m.recordQuota(cred.ID, *out.Quota)
		if out.Quota.Remaining <= m.settings.WarnThreshold {
			m.notifySuperAdmins(ctx, m.quotaWarning(cred.ID, *out.Quota))
		}
		if exhausted {
			return actionPause
		}
		return actionNone

	case adapter.OutcomeUnauthorized:
		m.log.Error().Str("credential", string(cred.ID)).Err(out.Err).Msg("credential unauthorized")
		m.mu.Lock()
		emptied := m.rotator.MarkUnauthorized(cred.ID)
		m.mu.Unlock()
		if emptied {
			return actionExhausted
		}
		m.notifySuperAdmins(ctx, fmt.Sprintf("⚠️ %s token unauthorized - switching to alternate token", strings.ToUpper(string(cred.ID))))
		return actionSwitch

	case adapter.OutcomeRateLimited:
		q := adapter.Quota{Remaining: 0}
		if out.Quota != nil {
			q = *out.Quota
		}
		exhausted := m.recordQuota(cred.ID, q)
		m.notifySuperAdmins(ctx, m.rateLimitNotice(cred.ID, q))
		if exhausted {
			return actionPause
		}
		return actionSwitch

	default:
		m.log.Warn().Str("credential", string(cred.ID)).Err(out.Err).Msg("transient fetch failure")
		return actionNone
	}
}

func (m *monitorUC) recordQuota(id model.CredentialID, q adapter.Quota) bool {
	metrics.SetCredentialRemaining(string(id), q.Remaining)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotator.RecordRateLimit(id, q.Remaining, q.ResetAt)
	return m.rotator.QuotaExhausted()
}

func (m *monitorUC) pause(ctx context.Context) {
	now := m.now()
	m.mu.Lock()
	d := PauseDuration(now, m.rotator.ResetTimes(), m.settings.PauseMin, m.settings.PauseMax, m.settings.PauseDefault)
	wait := d + m.settings.PauseBuffer
	m.paused = true
	m.pausedUntil = now.Add(wait)
	m.mu.Unlock()
	metrics.IncMonitorPause()

	m.log.Warn().Dur("wait", wait).Msg("all credentials out of quota, pausing")
	m.notifyAdmins(ctx, fmt.Sprintf("⏸️ Monitoring temporarily paused due to rate limits on all tokens\nResuming in about %d minutes", int(wait.Round(time.Minute)/time.Minute)))
	err := m.sleep(ctx, wait)

	m.mu.Lock()
	m.paused = false
	m.rotator.ResetQuota()
	m.mu.Unlock()
	if err != nil {
		return
	}
	m.notifyAdmins(ctx, msgMonitorResumed)
}

// exhausted sends the critical notice once per transition into "no authorized credentials".
func (m *monitorUC) exhausted(ctx context.Context) {
	m.mu.Lock()
	first := m.rotator.ClaimExhaustion()
	m.mu.Unlock()
	if !first {
		return
	}
	m.log.Error().Msg("all credentials unauthorized, stopping monitoring")
	m.notifySuperAdmins(ctx, msgAllUnauthorized)
}

// ----- state helpers (mu) -----

func (m *monitorUC) nextCredential() (model.Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotator.Next()
}

func (m *monitorUC) watermark(key model.EntityKey) (model.PostID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marks.Get(key)
}

// advance moves the watermark if key is still tracked. False means the posts must be dropped.
func (m *monitorUC) advance(key model.EntityKey, id model.PostID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.tracked(key) {
		return false
	}
	return m.marks.Set(key, id)
}

func (m *monitorUC) snapshotEntities() []model.EntityKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.EntityKey(nil), m.entities...)
}

func (m *monitorUC) tracked(key model.EntityKey) bool {
	for _, k := range m.entities {
		if k == key {
			return true
		}
	}
	return false
}

// ----- notices -----

func (m *monitorUC) adminDestinations(ctx context.Context) []int64 {
	ids, err := m.dests.AdminChatIDs(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to load admin destinations")
		return nil
	}
	return ids
}

func (m *monitorUC) notifyAdmins(ctx context.Context, text string) {
	m.dispatch.Notify(ctx, m.adminDestinations(ctx), text)
}

func (m *monitorUC) notifySuperAdmins(ctx context.Context, text string) {
	ids, err := m.dests.SuperAdminChatIDs(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to load super admin destinations")
		return
	}
	m.dispatch.Notify(ctx, ids, text)
}

func (m *monitorUC) statusSummary() string {
	entities := m.snapshotEntities()
	names := make([]string, 0, len(entities))
	for _, k := range entities {
		names = append(names, k.String())
	}
	return fmt.Sprintf("📊 Monitoring Status:\nUsers being monitored: %s\nPoll interval: %d seconds\nMonitoring loop starting...",
		strings.Join(names, ", "), int(m.settings.PollInterval/time.Second))
}

func (m *monitorUC) quotaWarning(id model.CredentialID, q adapter.Quota) string {
	return fmt.Sprintf("⚠️ Rate Limit Warning for %s token:\nRemaining requests: %d\n%s",
		strings.ToUpper(string(id)), q.Remaining, m.resetLine(q.ResetAt))
}

func (m *monitorUC) rateLimitNotice(id model.CredentialID, q adapter.Quota) string {
	return fmt.Sprintf("🚫 Rate Limit Exceeded for %s token!\n%s",
		strings.ToUpper(string(id)), m.resetLine(q.ResetAt))
}

func (m *monitorUC) resetLine(resetAt *time.Time) string {
	if resetAt == nil {
		return "Reset time: unknown"
	}
	mins := int(resetAt.Sub(m.now()).Minutes())
	if mins < 0 {
		mins = 0
	}
	return fmt.Sprintf("Reset in: %d minutes\nReset time: %s", mins, resetAt.In(m.dispatch.loc).Format("2006-01-02 03:04:05 PM MST"))
}

func dedupeKeys(keys []model.EntityKey) []model.EntityKey {
	seen := make(map[model.EntityKey]struct{}, len(keys))
	out := make([]model.EntityKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
