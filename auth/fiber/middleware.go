// Package fiber bridges the session core onto a Fiber-hosted admin
// shell. It is transport glue only: payload validation, redirects and
// status codes live here, session semantics live in the auth package.
package fiber

import (
	"net/url"
	"sync"

	"github.com/gofiber/fiber/v2"

	"taleemtrack.com/client/auth"
)

// RouteTracker adapts Fiber's request flow onto the core's Navigator:
// it remembers the last route a page request hit, and turns Navigate
// calls from the core into a pending redirect the middleware serves on
// the next request.
type RouteTracker struct {
	mu      sync.Mutex
	current string
	pending string
}

// NewRouteTracker creates an empty tracker.
func NewRouteTracker() *RouteTracker {
	return &RouteTracker{}
}

// CurrentPath returns the last tracked route.
func (t *RouteTracker) CurrentPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Navigate records a redirect target for the middleware to serve.
func (t *RouteTracker) Navigate(path string) {
	t.mu.Lock()
	t.pending = path
	t.mu.Unlock()
}

// consumePending returns and clears any pending redirect.
func (t *RouteTracker) consumePending() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := t.pending
	t.pending = ""
	return pending
}

// Middleware tracks the current route and serves redirects requested by
// the core (session expiry, cross-tab logout).
func (t *RouteTracker) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if target := t.consumePending(); target != "" {
			return c.Redirect(target, fiber.StatusSeeOther)
		}

		t.mu.Lock()
		t.current = c.Path()
		t.mu.Unlock()

		return c.Next()
	}
}

var _ auth.Navigator = (*RouteTracker)(nil)

// RequireSession redirects unauthenticated requests to the entry route,
// carrying the attempted path so login can return the user there.
func RequireSession(controller *auth.Controller, entryRoute string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if controller.State() == auth.StateAuthenticated {
			return c.Next()
		}
		if c.Path() == entryRoute {
			return c.Next()
		}
		target := entryRoute + "?" + auth.RedirectParam + "=" + url.QueryEscape(c.Path())
		return c.Redirect(target, fiber.StatusSeeOther)
	}
}

// RequireRole allows only the listed roles past, after RequireSession.
func RequireRole(controller *auth.Controller, allowed ...auth.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := controller.Identity().Role
		for _, want := range allowed {
			if role == want {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient role",
		})
	}
}
