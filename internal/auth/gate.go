package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"onboard-backend/internal/config"
	"onboard-backend/internal/token"
)

// GateFailure is the legacy failure shape surfaced to HTTP callers when a
// session is required but absent or invalid. Status is 400 by convention,
// not 401.
type GateFailure struct {
	Type    string       `json:"Type"`
	Message string       `json:"Message"`
	Body    GateRedirect `json:"Body"`
	Error   string       `json:"Error,omitempty"`
}

type GateRedirect struct {
	Redirect string `json:"Redirect"`
}

// Gate decides whether a request carries a usable session and attaches the
// verified payload to the request. It does not enforce tenant isolation;
// handlers filter by the payload's country themselves.
type Gate struct {
	codec      *token.Codec
	cookieName string
	cookieTTL  time.Duration
}

func NewGate(codec *token.Codec, cfg config.AuthConfig) *Gate {
	return &Gate{
		codec:      codec,
		cookieName: cfg.CookieName,
		cookieTTL:  time.Duration(cfg.SessionTTLMinutes) * time.Minute,
	}
}

// RequireSession returns a Fiber middleware that rejects requests without a
// valid, non-anonymous session. The token is read from the Authorization
// header (Bearer) or, failing that, the session cookie. On success the
// payload is attached to the request and the cookie is re-issued.
//
// Purpose-scoped tokens (invite, cbt) are not sessions: they are minted for
// untrusted holders and authenticate only against their own flow handlers.
func (g *Gate) RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := g.tokenFromRequest(c)
		v := g.codec.Verify(raw)

		if v.Status != token.Valid || v.Payload.IsAnonymous() || v.Payload.Purpose != "" {
			failure := GateFailure{
				Type:    "error",
				Message: "No permission",
				Body:    GateRedirect{Redirect: "signin"},
			}
			if v.Err != nil {
				failure.Error = v.Err.Error()
			}
			return c.Status(fiber.StatusBadRequest).JSON(failure)
		}

		c.Locals("principal", v.Payload)
		g.issueCookie(c, v.Payload)
		return c.Next()
	}
}

// RequireSuperUser gates write routes on reference data. It must run after
// RequireSession.
func (g *Gate) RequireSuperUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := Principal(c)
		if !IsSuperUser(p.Role) {
			return c.Status(fiber.StatusBadRequest).JSON(GateFailure{
				Type:    "error",
				Message: "No permission for this operation",
				Body:    GateRedirect{Redirect: "signin"},
			})
		}
		return c.Next()
	}
}

// Principal extracts the verified payload from a request. Returns the
// anonymous payload when no session was attached.
func Principal(c *fiber.Ctx) token.Payload {
	p, ok := c.Locals("principal").(token.Payload)
	if !ok {
		return token.Anonymous()
	}
	return p
}

// IsSuperUser reports whether the role may create, update, or deactivate
// reference data. Unknown and empty roles are always false.
func IsSuperUser(role string) bool {
	switch role {
	case "agency-manager", "onboarding-manager", "channel-manager", "country-manager", "superadmin":
		return true
	}
	return false
}

func (g *Gate) tokenFromRequest(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return c.Cookies(g.cookieName)
}

func (g *Gate) issueCookie(c *fiber.Ctx, p token.Payload) {
	signed, err := g.codec.Generate(p)
	if err != nil {
		return // keep serving on the old cookie
	}
	c.Cookie(&fiber.Cookie{
		Name:     g.cookieName,
		Value:    signed,
		HTTPOnly: true,
		MaxAge:   int(g.cookieTTL.Seconds()),
	})
}
