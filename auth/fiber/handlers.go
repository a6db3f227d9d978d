package fiber

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"taleemtrack.com/client/auth"
)

// Handlers exposes the session operations as HTTP endpoints.
type Handlers struct {
	controller *auth.Controller
	validate   *validator.Validate
}

// NewHandlers creates the handler set for a controller.
func NewHandlers(controller *auth.Controller) *Handlers {
	return &Handlers{
		controller: controller,
		validate:   validator.New(),
	}
}

// SetupRoutes registers the session routes on a Fiber app.
func SetupRoutes(app *fiber.App, controller *auth.Controller) {
	h := NewHandlers(controller)

	session := app.Group("/auth")
	session.Post("/login", h.Login)
	session.Post("/logout", h.Logout)
	session.Get("/me", h.Me)
}

type loginPayload struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// Login validates the payload and delegates to the controller. Empty
// fields are rejected here; the core never sees them.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var payload loginPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := h.validate.Struct(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "identifier and password are required",
		})
	}

	if err := h.controller.Login(c.Context(), payload.Identifier, payload.Password); err != nil {
		return writeSessionError(c, err)
	}

	return c.JSON(h.controller.Identity())
}

// Logout clears the session.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	h.controller.Logout(c.Context())
	return c.SendStatus(fiber.StatusNoContent)
}

// Me returns the current identity, refreshing the credential check when
// the state machine has not settled yet.
func (h *Handlers) Me(c *fiber.Ctx) error {
	if h.controller.State() == auth.StateUnknown {
		if err := h.controller.CheckAuth(c.Context()); err != nil {
			return writeSessionError(c, err)
		}
	}
	if h.controller.State() != auth.StateAuthenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "not authenticated",
		})
	}
	return c.JSON(h.controller.Identity())
}

// writeSessionError maps core errors onto HTTP responses: API errors
// keep their status and server message, network failures surface as a
// bad gateway.
func writeSessionError(c *fiber.Ctx, err error) error {
	var apiErr *auth.APIError
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.StatusCode).JSON(fiber.Map{"error": apiErr.Error()})
	}

	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return c.Status(authErr.Code).JSON(fiber.Map{"error": authErr.Message})
	}

	if auth.IsNetworkFailure(err) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream unreachable"})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
