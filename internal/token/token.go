package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Payload is the session identity carried by every request. A UserID of 0
// means "no session" regardless of what other fields are set.
type Payload struct {
	UserID    int64  `json:"userId"`
	Role      string `json:"role"`
	Username  string `json:"username"`
	ProfileID int64  `json:"profileId"`
	CountryID int64  `json:"countryId"`

	// Flow-specific extensions, set only by the flows that need them.
	SessionID  int64  `json:"sessionId,omitempty"`
	InviteID   int64  `json:"inviteId,omitempty"`
	DriverCode string `json:"drivercode,omitempty"`
	Purpose    string `json:"purpose,omitempty"`
	MarketID   int64  `json:"marketId,omitempty"`
	ProductID  int64  `json:"productId,omitempty"`
}

// Anonymous returns the canonical zero-identity payload.
func Anonymous() Payload {
	return Payload{}
}

// IsAnonymous reports whether the payload carries no session.
func (p Payload) IsAnonymous() bool {
	return p.UserID == 0
}

type Claims struct {
	jwt.RegisteredClaims
	Payload
}

// Status classifies a verification outcome.
type Status int

const (
	Missing Status = iota // no token supplied
	Invalid               // malformed, expired, or bad signature
	Valid
)

// Verification is the tagged result of Verify. Most call sites treat Missing
// and Invalid identically; security-sensitive paths can distinguish them.
type Verification struct {
	Status  Status
	Payload Payload
	Err     error
}

const SessionTTL = 24 * time.Hour

// Codec signs and verifies session tokens. The secret is injected at
// construction; nothing here reads ambient configuration.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Generate produces a signed token with the standard session expiry. A
// payload with a zero or absent UserID is replaced by the canonical anonymous
// payload; caller-supplied partial fields never survive that substitution.
func (c *Codec) Generate(p Payload) (string, error) {
	return c.generate(p, true)
}

// GenerateLong produces a signed token with no expiry, for long-lived API
// tokens such as invite links and assessment sessions.
func (c *Codec) GenerateLong(p Payload) (string, error) {
	return c.generate(p, false)
}

func (c *Codec) generate(p Payload, expiring bool) (string, error) {
	if p.UserID == 0 {
		p = Anonymous()
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
		Payload: p,
	}
	if expiring {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(SessionTTL))
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify decodes and validates a token string. It never panics and never
// returns a usable payload for anything but a valid token.
func (c *Codec) Verify(tokenStr string) Verification {
	if tokenStr == "" {
		return Verification{Status: Missing, Payload: Anonymous()}
	}

	tok, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return Verification{Status: Invalid, Payload: Anonymous(), Err: err}
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return Verification{Status: Invalid, Payload: Anonymous(), Err: fmt.Errorf("invalid token claims")}
	}
	return Verification{Status: Valid, Payload: claims.Payload}
}

// VerifyOrAnonymous collapses every verification failure to the anonymous
// payload. Callers must reject a zero UserID where authentication is
// mandatory.
func (c *Codec) VerifyOrAnonymous(tokenStr string) Payload {
	return c.Verify(tokenStr).Payload
}
