package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Remote auth endpoints consumed by the controller.
const (
	LoginPath = "/auth/login"
	MePath    = "/auth/me"
)

// RedirectParam carries the saved route back to the entry route so the
// host can return the user after the next login.
const RedirectParam = "redirect"

// Navigator abstracts route observation and redirects. The hosting UI
// layer supplies the real implementation; the core only records paths
// and asks for redirects through it.
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// NopNavigator is a Navigator for headless hosts and tests.
type NopNavigator struct{}

func (NopNavigator) CurrentPath() string { return "" }
func (NopNavigator) Navigate(string)     {}

// FilterBinder lets the controller drive the filter subsystem without
// depending on it: bind the active role's bucket after login/checkAuth,
// wipe every bucket on logout.
type FilterBinder interface {
	BindRole(role Role, divisionID string)
	ClearAll()
}

// ControllerOptions tune a Controller. Zero values select defaults.
type ControllerOptions struct {
	Navigator  Navigator
	Filters    FilterBinder
	EntryRoute string // unauthenticated entry route, default "/login"

	// RefreshLead is how far ahead of token expiry the proactive refresh
	// fires (default 60s); MinRefreshDelay floors the timer (default 1s).
	RefreshLead     time.Duration
	MinRefreshDelay time.Duration

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Controller owns the in-memory session identity and orchestrates
// login, logout and startup credential checks. One Controller exists
// per process ("tab"); several processes may share one storage backend
// and stay in sync through the External* handlers.
type Controller struct {
	tokens    *TokenStore
	gateway   *Gateway
	refresher Refresher
	nav       Navigator
	filters   FilterBinder
	log       *slog.Logger

	entryRoute  string
	refreshLead time.Duration
	minDelay    time.Duration
	now         func() time.Time

	mu            sync.Mutex
	state         State
	identity      Identity
	loading       bool
	refreshTimer  *time.Timer
	nextRefreshAt time.Time
	generation    uint64 // bumped on every state-invalidating transition

	subMu     sync.Mutex
	subs      map[int]func(State, Identity)
	nextSubID int

	cancelExpired func()
}

// NewController creates a controller and subscribes it to the gateway's
// session-expired broadcast. The caller owns Dispose.
func NewController(tokens *TokenStore, gateway *Gateway, refresher Refresher, opts ControllerOptions) *Controller {
	if opts.Navigator == nil {
		opts.Navigator = NopNavigator{}
	}
	if opts.EntryRoute == "" {
		opts.EntryRoute = "/login"
	}
	if opts.RefreshLead == 0 {
		opts.RefreshLead = 60 * time.Second
	}
	if opts.MinRefreshDelay == 0 {
		opts.MinRefreshDelay = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Controller{
		tokens:      tokens,
		gateway:     gateway,
		refresher:   refresher,
		nav:         opts.Navigator,
		filters:     opts.Filters,
		log:         opts.Logger,
		entryRoute:  opts.EntryRoute,
		refreshLead: opts.RefreshLead,
		minDelay:    opts.MinRefreshDelay,
		now:         opts.Now,
		state:       StateUnknown,
		subs:        make(map[int]func(State, Identity)),
	}
	c.cancelExpired = gateway.SessionExpired().Subscribe(c.handleSessionExpired)
	return c
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns a copy of the current identity.
func (c *Controller) Identity() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Loading reports whether a login or credential check is in progress.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// NextScheduledRefresh returns when the proactive refresh timer will
// fire, or the zero time when none is scheduled.
func (c *Controller) NextScheduledRefresh() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextRefreshAt
}

// OnStateChange registers a callback invoked after every state
// transition. Returns a cancel function.
func (c *Controller) OnStateChange(fn func(State, Identity)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Login authenticates against the remote API. On success it stores the
// token pair and role, populates the identity, resolves division fields
// for division-scoped roles and schedules proactive refresh. Failures
// from the login endpoint are returned untouched so the caller decides
// the messaging.
func (c *Controller) Login(ctx context.Context, identifier, password string) error {
	c.setLoading(true)
	defer c.setLoading(false)

	var out loginResponse
	if _, err := c.gateway.DoPublic(ctx, http.MethodPost, LoginPath, loginRequest{Identifier: identifier, Password: password}, &out); err != nil {
		return err
	}

	pair := TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}
	c.tokens.SetTokenPair(ctx, pair)
	c.tokens.SetRole(ctx, out.Role)

	c.mu.Lock()
	c.generation++
	c.identity = Identity{
		Role:     out.Role,
		UserID:   out.User.ID,
		Email:    out.User.Email,
		UserName: out.User.Name,
	}
	c.state = StateAuthenticated
	c.scheduleRefreshLocked(pair.AccessToken)
	c.mu.Unlock()

	if out.Role == RoleDivision {
		c.resolveDivision(ctx)
	}

	c.bindFilters(ctx)
	c.notifyState()
	c.log.Info("login succeeded", "role", out.Role)
	return nil
}

// CheckAuth resolves stored credentials at process start (and on
// demand). Absent credentials settle the state machine to
// unauthenticated. An auth failure from the profile endpoint logs the
// user out; any other failure (network) preserves the current identity
// and only clears the loading flag.
func (c *Controller) CheckAuth(ctx context.Context) error {
	c.setLoading(true)
	defer c.setLoading(false)

	if c.tokens.AccessToken(ctx) == "" && c.tokens.RefreshToken(ctx) == "" {
		c.mu.Lock()
		c.generation++
		c.cancelTimerLocked()
		c.identity = Identity{}
		c.state = StateUnauthenticated
		c.mu.Unlock()
		c.notifyState()
		return nil
	}

	var prof profileResponse
	if _, err := c.gateway.Do(ctx, http.MethodGet, MePath, nil, &prof); err != nil {
		if IsAuthFailure(err) {
			c.log.Info("stored credentials rejected, logging out")
			c.Logout(ctx)
			return err
		}
		c.log.Debug("credential check failed without auth signal, keeping state", "error", err)
		return err
	}

	role := prof.Role
	if role == "" {
		role = c.tokens.Role(ctx)
	}
	c.tokens.SetRole(ctx, role)

	c.mu.Lock()
	c.generation++
	c.identity = Identity{Role: role, UserID: prof.ID, Email: prof.Email}
	if prof.Profile != nil {
		c.identity.UserName = prof.Profile.Name
	}
	c.state = StateAuthenticated
	c.scheduleRefreshLocked(c.tokens.AccessToken(ctx))
	c.mu.Unlock()

	if role == RoleDivision {
		c.applyDivision(ctx, &prof)
	}

	c.bindFilters(ctx)
	c.notifyState()
	return nil
}

// Logout clears all persisted credentials, the in-memory identity and
// every per-role filter bucket, cancels the proactive refresh timer and
// best-effort records the current route for post-login redirect.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	c.cancelTimerLocked()
	c.mu.Unlock()

	if path := c.nav.CurrentPath(); path != "" && path != c.entryRoute {
		c.tokens.SetLastPath(ctx, path)
	}

	c.tokens.ClearSession(ctx)
	if c.filters != nil {
		c.filters.ClearAll()
	}

	c.mu.Lock()
	c.identity = Identity{}
	c.state = StateUnauthenticated
	c.mu.Unlock()
	c.notifyState()
	c.log.Info("logged out")
}

// ExternalTokenChanged is called by the host when another tab wrote a
// new access token to the shared store. The proactive refresh timer is
// realigned with the new expiry. Events for a token this tab just wrote
// itself are harmless: rescheduling is idempotent.
func (c *Controller) ExternalTokenChanged(accessToken string) {
	if accessToken == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduleRefreshLocked(accessToken)
}

// ExternalRoleCleared is called by the host when another tab cleared
// the role key, i.e. logged out. This tab follows suit and redirects to
// the entry route, unless it is already there.
func (c *Controller) ExternalRoleCleared() {
	if c.nav.CurrentPath() == c.entryRoute {
		return
	}
	c.Logout(context.Background())
	c.nav.Navigate(c.entryRoute)
}

// Dispose cancels the refresh timer and all subscriptions. The
// controller must not be used afterwards.
func (c *Controller) Dispose() {
	if c.cancelExpired != nil {
		c.cancelExpired()
		c.cancelExpired = nil
	}

	c.mu.Lock()
	c.generation++
	c.cancelTimerLocked()
	c.mu.Unlock()

	c.subMu.Lock()
	c.subs = make(map[int]func(State, Identity))
	c.subMu.Unlock()
}

// handleSessionExpired reacts to the gateway's broadcast: save the
// current route, log out, and send the user to the entry route with the
// saved route as the return target. On the entry route it does nothing.
func (c *Controller) handleSessionExpired() {
	path := c.nav.CurrentPath()
	if path == c.entryRoute {
		return
	}

	c.Logout(context.Background())

	target := c.entryRoute
	if path != "" {
		target += "?" + RedirectParam + "=" + url.QueryEscape(path)
	}
	c.nav.Navigate(target)
}

// resolveDivision fetches the profile to fill in division fields after
// a division-role login. A failure here is logged but never fails the
// login itself.
func (c *Controller) resolveDivision(ctx context.Context) {
	var prof profileResponse
	if _, err := c.gateway.Do(ctx, http.MethodGet, MePath, nil, &prof); err != nil {
		c.log.Warn("division profile fetch failed", "error", err)
		return
	}
	c.applyDivision(ctx, &prof)
}

// applyDivision copies the profile's division fields into the identity
// and the persistent store.
func (c *Controller) applyDivision(ctx context.Context, prof *profileResponse) {
	id, name := divisionFrom(prof)
	if id == "" {
		return
	}

	c.mu.Lock()
	c.identity.DivisionID = id
	c.identity.DivisionName = name
	c.mu.Unlock()
	c.tokens.SetDivision(ctx, id, name)
}

// divisionFrom reads the division pair from either profile shape the
// server uses: a nested division object or a bare divisionId.
func divisionFrom(prof *profileResponse) (id, name string) {
	if prof.Profile == nil {
		return "", ""
	}
	if prof.Profile.Division != nil && prof.Profile.Division.ID != "" {
		return prof.Profile.Division.ID, prof.Profile.Division.Name
	}
	return prof.Profile.DivisionID, ""
}

// bindFilters points the filter subsystem at the active role's bucket.
func (c *Controller) bindFilters(context.Context) {
	if c.filters == nil {
		return
	}
	c.mu.Lock()
	role, divisionID := c.identity.Role, c.identity.DivisionID
	c.mu.Unlock()
	c.filters.BindRole(role, divisionID)
}

// scheduleRefreshLocked arms the one-shot proactive refresh timer for
// the given access token. Undecodable tokens silently skip scheduling;
// reactive 401-triggered refresh remains the fallback. Caller holds mu.
func (c *Controller) scheduleRefreshLocked(accessToken string) {
	c.cancelTimerLocked()

	exp, err := TokenExpiry(accessToken)
	if err != nil {
		c.log.Debug("not scheduling proactive refresh", "error", err)
		return
	}

	delay := refreshDelay(exp, c.now(), c.refreshLead, c.minDelay)
	gen := c.generation
	c.refreshTimer = time.AfterFunc(delay, func() { c.proactiveRefresh(gen) })
	c.nextRefreshAt = c.now().Add(delay)
}

// cancelTimerLocked stops any pending proactive refresh. Caller holds mu.
func (c *Controller) cancelTimerLocked() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.nextRefreshAt = time.Time{}
}

// proactiveRefresh is the timer callback. A stale timer (generation
// moved on, or the session ended) is a no-op. A failed refresh is
// deliberately swallowed: reactive refresh on the next 401 decides the
// session's fate, not a background timer.
func (c *Controller) proactiveRefresh(gen uint64) {
	c.mu.Lock()
	if c.generation != gen || c.state != StateAuthenticated {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	pair, err := c.refresher.Refresh(context.Background())
	if err != nil {
		c.log.Debug("proactive refresh failed, relying on reactive refresh", "error", err)
		return
	}

	c.mu.Lock()
	if c.generation == gen {
		c.scheduleRefreshLocked(pair.AccessToken)
	}
	c.mu.Unlock()
}

// refreshDelay computes how long to wait before proactively refreshing
// a token that expires at exp: lead ahead of expiry, floored at min.
func refreshDelay(exp, now time.Time, lead, min time.Duration) time.Duration {
	delay := exp.Sub(now) - lead
	if delay < min {
		return min
	}
	return delay
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

func (c *Controller) notifyState() {
	c.mu.Lock()
	state, identity := c.state, c.identity
	c.mu.Unlock()

	c.subMu.Lock()
	fns := make([]func(State, Identity), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(state, identity)
	}
}
