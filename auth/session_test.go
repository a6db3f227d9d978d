package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type testNav struct {
	mu   sync.Mutex
	path string
	navs []string
}

func (n *testNav) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *testNav) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.navs = append(n.navs, path)
	n.path = path
}

func (n *testNav) targets() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.navs...)
}

type fakeFilters struct {
	mu     sync.Mutex
	bound  []string
	clears int
}

func (f *fakeFilters) BindRole(role Role, divisionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound = append(f.bound, fmt.Sprintf("%s|%s", role, divisionID))
}

func (f *fakeFilters) ClearAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
}

func (f *fakeFilters) lastBound() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bound) == 0 {
		return ""
	}
	return f.bound[len(f.bound)-1]
}

func (f *fakeFilters) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

// controllerFixture bundles the moving parts of a Controller test.
type controllerFixture struct {
	controller *Controller
	tokens     *TokenStore
	nav        *testNav
	filters    *fakeFilters
	refresher  *stubRefresher
}

func newControllerFixture(t *testing.T, srv *httptest.Server) *controllerFixture {
	t.Helper()

	tokens := newTestTokenStore()
	refresher := &stubRefresher{}
	gateway := NewGateway(srv.URL, srv.Client(), tokens, refresher, testLogger())
	nav := &testNav{}
	filters := &fakeFilters{}

	c := NewController(tokens, gateway, refresher, ControllerOptions{
		Navigator: nav,
		Filters:   filters,
		Logger:    testLogger(),
	})
	t.Cleanup(c.Dispose)

	return &controllerFixture{
		controller: c,
		tokens:     tokens,
		nav:        nav,
		filters:    filters,
		refresher:  refresher,
	}
}

func writeLogin(w http.ResponseWriter, role Role, access string) {
	json.NewEncoder(w).Encode(map[string]any{
		"accessToken":  access,
		"refreshToken": "ref-1",
		"role":         role,
		"user":         map[string]string{"id": "u1", "email": "u1@example.com", "name": "Asma"},
	})
}

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	access := unsignedToken(time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != LoginPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not carry a bearer token")
		}
		var req loginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Identifier != "trainer1" || req.Password != "secret" {
			t.Errorf("credentials = %q/%q", req.Identifier, req.Password)
		}
		writeLogin(w, RoleTrainer, access)
	}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)

	if err := fx.controller.Login(ctx, "trainer1", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if got := fx.controller.State(); got != StateAuthenticated {
		t.Errorf("state = %v", got)
	}
	id := fx.controller.Identity()
	if id.Role != RoleTrainer || id.UserID != "u1" || id.UserName != "Asma" {
		t.Errorf("identity = %+v", id)
	}
	if got := fx.tokens.AccessToken(ctx); got != access {
		t.Error("access token not persisted")
	}
	if got := fx.tokens.Role(ctx); got != RoleTrainer {
		t.Errorf("persisted role = %q", got)
	}
	if got := fx.filters.lastBound(); got != "trainer|" {
		t.Errorf("filters bound to %q", got)
	}
	if fx.controller.NextScheduledRefresh().IsZero() {
		t.Error("proactive refresh not scheduled")
	}
	if fx.controller.Loading() {
		t.Error("loading flag stuck after login")
	}
}

func TestLoginDivisionRoleResolvesDivision(t *testing.T) {
	ctx := context.Background()
	access := unsignedToken(time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case LoginPath:
			writeLogin(w, RoleDivision, access)
		case MePath:
			json.NewEncoder(w).Encode(map[string]any{
				"id":   "u1",
				"role": RoleDivision,
				"profile": map[string]any{
					"name":     "Asma",
					"division": map[string]string{"id": "D9", "name": "North"},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)

	if err := fx.controller.Login(ctx, "div1", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	id := fx.controller.Identity()
	if id.DivisionID != "D9" || id.DivisionName != "North" {
		t.Errorf("division = %q/%q", id.DivisionID, id.DivisionName)
	}
	if got := fx.tokens.DivisionID(ctx); got != "D9" {
		t.Errorf("persisted division = %q", got)
	}
	if got := fx.filters.lastBound(); got != "division_role|D9" {
		t.Errorf("filters bound to %q", got)
	}
}

func TestLoginDivisionProfileFailureStillSucceeds(t *testing.T) {
	access := unsignedToken(time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case LoginPath:
			writeLogin(w, RoleDivision, access)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)

	if err := fx.controller.Login(context.Background(), "div1", "secret"); err != nil {
		t.Fatalf("profile failure must not fail the login: %v", err)
	}
	if got := fx.controller.State(); got != StateAuthenticated {
		t.Errorf("state = %v", got)
	}
	if got := fx.controller.Identity().DivisionID; got != "" {
		t.Errorf("division = %q, want empty", got)
	}
}

func TestLoginFailurePassesServerErrorThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid credentials"})
	}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)

	err := fx.controller.Login(context.Background(), "trainer1", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "invalid credentials" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if got := fx.controller.State(); got == StateAuthenticated {
		t.Error("failed login left the session authenticated")
	}
	if got := fx.tokens.AccessToken(context.Background()); got != "" {
		t.Errorf("failed login persisted a token: %q", got)
	}
}

func TestCheckAuthWithoutCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without stored credentials")
	}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)

	if err := fx.controller.CheckAuth(context.Background()); err != nil {
		t.Fatalf("CheckAuth failed: %v", err)
	}
	if got := fx.controller.State(); got != StateUnauthenticated {
		t.Errorf("state = %v, want unauthenticated", got)
	}
}

func TestCheckAuthRestoresSession(t *testing.T) {
	ctx := context.Background()
	access := unsignedToken(time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != MePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "u1",
			"email":   "u1@example.com",
			"role":    RoleTeacher,
			"profile": map[string]any{"name": "Bilal"},
		})
	}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)
	fx.tokens.SetTokenPair(ctx, TokenPair{AccessToken: access, RefreshToken: "ref-1"})

	if err := fx.controller.CheckAuth(ctx); err != nil {
		t.Fatalf("CheckAuth failed: %v", err)
	}

	if got := fx.controller.State(); got != StateAuthenticated {
		t.Errorf("state = %v", got)
	}
	id := fx.controller.Identity()
	if id.Role != RoleTeacher || id.UserName != "Bilal" {
		t.Errorf("identity = %+v", id)
	}
	if got := fx.filters.lastBound(); got != "teacher|" {
		t.Errorf("filters bound to %q", got)
	}
}

func TestCheckAuthRejectedCredentialsLogOut(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)
	fx.tokens.SetTokenPair(ctx, TokenPair{AccessToken: "stale", RefreshToken: "stale"})
	fx.tokens.SetRole(ctx, RoleTrainer)

	if err := fx.controller.CheckAuth(ctx); err == nil {
		t.Fatal("CheckAuth should surface the auth failure")
	}

	if got := fx.controller.State(); got != StateUnauthenticated {
		t.Errorf("state = %v, want unauthenticated", got)
	}
	if got := fx.tokens.AccessToken(ctx); got != "" {
		t.Errorf("access token survived: %q", got)
	}
	if got := fx.filters.clearCount(); got != 1 {
		t.Errorf("filter buckets cleared %d times, want 1", got)
	}
}

// A transient network failure during the credential check must not
// destroy an established session.
func TestCheckAuthNetworkFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	access := unsignedToken(time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeLogin(w, RoleTrainer, access)
	}))

	fx := newControllerFixture(t, srv)
	if err := fx.controller.Login(ctx, "trainer1", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	srv.Close()

	err := fx.controller.CheckAuth(ctx)
	if err == nil {
		t.Fatal("CheckAuth should report the network failure")
	}
	if !IsNetworkFailure(err) {
		t.Errorf("err = %v, want a network failure", err)
	}
	if got := fx.controller.State(); got != StateAuthenticated {
		t.Errorf("state = %v, session lost over a network blip", got)
	}
	if got := fx.controller.Identity().Role; got != RoleTrainer {
		t.Errorf("identity role = %q", got)
	}
	if got := fx.tokens.AccessToken(ctx); got != access {
		t.Error("stored credentials lost over a network blip")
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	ctx := context.Background()
	access := unsignedToken(time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeLogin(w, RoleTrainer, access)
	}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)
	if err := fx.controller.Login(ctx, "trainer1", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	fx.nav.path = "/dashboard/schools"

	fx.controller.Logout(ctx)

	if got := fx.controller.State(); got != StateUnauthenticated {
		t.Errorf("state = %v", got)
	}
	if got := fx.tokens.AccessToken(ctx); got != "" {
		t.Errorf("access token survived logout: %q", got)
	}
	if got := fx.tokens.Role(ctx); got != "" {
		t.Errorf("role survived logout: %q", got)
	}
	if got := fx.tokens.LastPath(ctx); got != "/dashboard/schools" {
		t.Errorf("LastPath = %q, want /dashboard/schools", got)
	}
	if got := fx.filters.clearCount(); got != 1 {
		t.Errorf("filter buckets cleared %d times, want 1", got)
	}
	if !fx.controller.NextScheduledRefresh().IsZero() {
		t.Error("refresh timer survived logout")
	}
}

func TestLogoutOnEntryRouteSkipsLastPath(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)
	fx.nav.path = "/login"

	fx.controller.Logout(ctx)

	if got := fx.tokens.LastPath(ctx); got != "" {
		t.Errorf("LastPath = %q, entry route must not be recorded", got)
	}
}

func TestRefreshDelay(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	lead := 60 * time.Second
	min := time.Second

	tests := []struct {
		name string
		exp  time.Time
		want time.Duration
	}{
		{"far future", base.Add(5000 * time.Second), 4940 * time.Second},
		{"inside lead", base.Add(30 * time.Second), time.Second},
		{"already expired", base.Add(-time.Minute), time.Second},
		{"exactly at lead", base.Add(lead), time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := refreshDelay(tt.exp, base, lead, min); got != tt.want {
				t.Errorf("refreshDelay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProactiveRefreshSchedule(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	access := unsignedToken(base.Add(5000 * time.Second))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeLogin(w, RoleTrainer, access)
	}))
	defer srv.Close()

	tokens := newTestTokenStore()
	gateway := NewGateway(srv.URL, srv.Client(), tokens, &stubRefresher{}, testLogger())
	c := NewController(tokens, gateway, &stubRefresher{}, ControllerOptions{
		Logger: testLogger(),
		Now:    func() time.Time { return base },
	})
	defer c.Dispose()

	if err := c.Login(context.Background(), "trainer1", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	want := base.Add(4940 * time.Second)
	if got := c.NextScheduledRefresh(); !got.Equal(want) {
		t.Errorf("NextScheduledRefresh = %v, want %v", got, want)
	}
}

func TestUndecodableTokenSkipsScheduling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeLogin(w, RoleTrainer, "not-a-jwt")
	}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)

	if err := fx.controller.Login(context.Background(), "trainer1", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got := fx.controller.State(); got != StateAuthenticated {
		t.Errorf("state = %v, scheduling failure must not block login", got)
	}
	if !fx.controller.NextScheduledRefresh().IsZero() {
		t.Error("undecodable token still scheduled a refresh")
	}
}

// A timer armed before a logout or re-login must do nothing when it
// finally fires.
func TestStaleProactiveRefreshIsNoop(t *testing.T) {
	ctx := context.Background()
	access := unsignedToken(time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeLogin(w, RoleTrainer, access)
	}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)
	if err := fx.controller.Login(ctx, "trainer1", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	fx.controller.mu.Lock()
	stale := fx.controller.generation - 1
	fx.controller.mu.Unlock()

	fx.controller.proactiveRefresh(stale)

	if got := fx.refresher.calls; got != 0 {
		t.Errorf("stale timer still refreshed %d times", got)
	}
}

func TestSessionExpiredRedirectsWithReturnTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)
	fx.nav.path = "/dashboard/schools"

	fx.controller.gateway.SessionExpired().Emit()

	targets := fx.nav.targets()
	if len(targets) != 1 || targets[0] != "/login?redirect=%2Fdashboard%2Fschools" {
		t.Errorf("navigations = %v", targets)
	}
	if got := fx.controller.State(); got != StateUnauthenticated {
		t.Errorf("state = %v", got)
	}
	if got := fx.tokens.LastPath(context.Background()); got != "/dashboard/schools" {
		t.Errorf("LastPath = %q", got)
	}
}

func TestSessionExpiredOnEntryRouteIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)
	fx.nav.path = "/login"

	fx.controller.gateway.SessionExpired().Emit()

	if got := fx.nav.targets(); len(got) != 0 {
		t.Errorf("navigations = %v, want none", got)
	}
	if got := fx.filters.clearCount(); got != 0 {
		t.Errorf("filters cleared on the entry route: %d", got)
	}
}

func TestExternalRoleCleared(t *testing.T) {
	ctx := context.Background()
	access := unsignedToken(time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeLogin(w, RoleTrainer, access)
	}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)
	if err := fx.controller.Login(ctx, "trainer1", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	fx.nav.path = "/dashboard"

	fx.controller.ExternalRoleCleared()

	if got := fx.controller.State(); got != StateUnauthenticated {
		t.Errorf("state = %v", got)
	}
	targets := fx.nav.targets()
	if len(targets) != 1 || targets[0] != "/login" {
		t.Errorf("navigations = %v", targets)
	}
}

func TestExternalRoleClearedOnEntryRouteIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)
	fx.nav.path = "/login"

	fx.controller.ExternalRoleCleared()

	if got := fx.nav.targets(); len(got) != 0 {
		t.Errorf("navigations = %v, want none", got)
	}
}

func TestExternalTokenChangedReschedules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)

	fx.controller.ExternalTokenChanged(unsignedToken(time.Now().Add(time.Hour)))
	if fx.controller.NextScheduledRefresh().IsZero() {
		t.Error("external token change did not arm the timer")
	}

	before := fx.controller.NextScheduledRefresh()
	fx.controller.ExternalTokenChanged("")
	if got := fx.controller.NextScheduledRefresh(); !got.Equal(before) {
		t.Error("empty token event disturbed the timer")
	}
}

func TestDisposeStopsExpiredReactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)
	fx.nav.path = "/dashboard"

	fx.controller.Dispose()
	fx.controller.gateway.SessionExpired().Emit()

	if got := fx.nav.targets(); len(got) != 0 {
		t.Errorf("disposed controller still navigated: %v", got)
	}
}

func TestOnStateChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	fx := newControllerFixture(t, srv)

	var mu sync.Mutex
	var seen []State
	cancel := fx.controller.OnStateChange(func(s State, _ Identity) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	fx.controller.Logout(context.Background())

	mu.Lock()
	if len(seen) != 1 || seen[0] != StateUnauthenticated {
		t.Errorf("seen = %v", seen)
	}
	mu.Unlock()

	cancel()
	fx.controller.Logout(context.Background())

	mu.Lock()
	if len(seen) != 1 {
		t.Errorf("cancelled subscription still notified: %v", seen)
	}
	mu.Unlock()
}
