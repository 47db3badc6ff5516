package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"onboard-backend/internal/config"
	"onboard-backend/internal/store"
	"onboard-backend/internal/token"
)

// Handler serves the sign-in endpoint.
type Handler struct {
	store *store.Store
	codec *token.Codec
	gate  *Gate
	salt  string
}

func NewHandler(s *store.Store, codec *token.Codec, gate *Gate, cfg config.AuthConfig) *Handler {
	return &Handler{store: s, codec: codec, gate: gate, salt: cfg.PasswordSalt}
}

// Signin handles POST /api/auth/signin.
func (h *Handler) Signin(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return signinFailure(c, "Invalid request body", nil)
	}
	if body.Email == "" || body.Password == "" {
		return signinFailure(c, "Email and password are required", nil)
	}

	user, err := h.findUserByEmail(c.Context(), body.Email)
	if err != nil {
		return signinFailure(c, "Invalid email or password", nil)
	}

	active, _ := user["active"].(bool)
	if !active {
		return signinFailure(c, "Account is disabled", nil)
	}

	hash, _ := user["passwordhash"].(string)
	if !CheckPassword(body.Password, h.salt, hash) {
		return signinFailure(c, "Invalid email or password", nil)
	}

	payload := token.Payload{
		UserID:    asInt64(user["id"]),
		Role:      asString(user["role"]),
		Username:  asString(user["username"]),
		ProfileID: asInt64(user["profileid"]),
		CountryID: asInt64(user["countryid"]),
	}

	signed, err := h.codec.Generate(payload)
	if err != nil {
		return signinFailure(c, "Failed to create session", err)
	}

	h.gate.issueCookie(c, payload)
	return c.JSON(fiber.Map{
		"token": signed,
		"user": fiber.Map{
			"userId":    payload.UserID,
			"role":      payload.Role,
			"username":  payload.Username,
			"countryId": payload.CountryID,
		},
	})
}

// Signout handles POST /api/auth/signout. Sessions have no server-side
// revocation list; signout just clears the cookie.
func (h *Handler) Signout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     h.gate.cookieName,
		Value:    "",
		HTTPOnly: true,
		MaxAge:   -1,
	})
	return c.JSON(fiber.Map{"message": "Signed out"})
}

// RegisterRoutes registers auth routes on the given Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/signin", h.Signin)
	grp.Post("/signout", h.Signout)
}

func (h *Handler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	return store.QueryRow(ctx, h.store.Pool,
		"SELECT id, username, email, passwordhash, role, profileid, countryid, active FROM users WHERE email = $1", email)
}

func signinFailure(c *fiber.Ctx, msg string, err error) error {
	failure := GateFailure{
		Type:    "error",
		Message: msg,
		Body:    GateRedirect{Redirect: "signin"},
	}
	if err != nil {
		failure.Error = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(failure)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
