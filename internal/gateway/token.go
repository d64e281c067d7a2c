package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired means the token was well-formed and correctly signed
	// but its expiry has passed. Clients should re-authenticate silently.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid covers every other verification failure: bad
	// signature, wrong algorithm, malformed structure. Deliberately
	// undifferentiated so responses leak nothing about the signing key.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims is the payload of a capability token.
// Cameras is the scoped camera set; Camera is the older single-camera claim
// kept for tokens minted by previous deployments. Scope() merges both.
type Claims struct {
	Kind    TokenKind  `json:"type"`
	Role    Role       `json:"role,omitempty"`
	Cameras []CameraID `json:"cameras,omitempty"`
	Camera  CameraID   `json:"cameraId,omitempty"`
	jwt.RegisteredClaims
}

// Scope returns the normalized camera set: the set-valued claim plus the
// legacy scalar claim, deduplicated. Downstream code never sees the two
// representations separately.
func (c *Claims) Scope() []CameraID {
	scope := make([]CameraID, 0, len(c.Cameras)+1)
	seen := make(map[CameraID]bool, len(c.Cameras)+1)
	for _, id := range c.Cameras {
		if !seen[id] {
			seen[id] = true
			scope = append(scope, id)
		}
	}
	if c.Camera != 0 && !seen[c.Camera] {
		scope = append(scope, c.Camera)
	}
	return scope
}

// Codec signs and verifies capability tokens with a single deployment-wide
// HMAC-SHA256 key. Verification is a pure function of key, input, and clock.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec returns a Codec signing with secret. The secret must be non-empty.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("token codec: signing secret is required")
	}
	return &Codec{secret: []byte(secret), now: time.Now}, nil
}

// NewCodecAt is NewCodec with an injected clock, for tests that need to
// issue tokens in the past or verify against a simulated wall clock.
func NewCodecAt(secret string, now func() time.Time) (*Codec, error) {
	c, err := NewCodec(secret)
	if err != nil {
		return nil, err
	}
	c.now = now
	return c, nil
}

// Issue signs claims with an expiry of ttl from now. ttl must be positive:
// a token whose expiresAt does not exceed issuedAt is never issued.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token codec: ttl must be positive, got %s", ttl)
	}
	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token codec: sign: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string. It returns ErrTokenExpired
// when expiry is the failure, ErrTokenInvalid for everything else.
func (c *Codec) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
