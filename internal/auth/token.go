package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is the token lifetime used unless overridden via
	// configuration.
	DefaultTokenTTL = 24 * time.Hour

	// DevSecret is the development fallback signing key. Production
	// deployments must override it (IDENTITY_AUTH_SECRET).
	DevSecret = "storekit-dev-secret-0123456789abcdef0123456789abcdef"

	// HS512 gives no real security below a 256-bit key.
	minSecretLen = 32

	rolePrefix = "ROLE_"
)

// Claims is the self-contained claim set carried by a session token.
// Roles and Permissions are comma-joined snapshots taken at issuance;
// later store mutations do not affect tokens already in flight.
type Claims struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	Enabled     bool   `json:"enabled"`
	Roles       string `json:"roles"`
	Permissions string `json:"permissions"`
	jwt.RegisteredClaims
}

// Authorities flattens the claim strings into the authority list used
// for access-control matching: ROLE_<name> entries first, then bare
// permission names, each in join order. Entries are trimmed and empty
// entries dropped.
func (c *Claims) Authorities() []string {
	var out []string
	for _, role := range strings.Split(c.Roles, ",") {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		out = append(out, rolePrefix+role)
	}
	for _, perm := range strings.Split(c.Permissions, ",") {
		perm = strings.TrimSpace(perm)
		if perm == "" {
			continue
		}
		out = append(out, perm)
	}
	return out
}

// Codec mints and verifies signed session tokens using HMAC-SHA-512.
// The signing key is immutable after construction, so a single Codec is
// safe for concurrent use and verification never touches the store.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec) error

// WithSecret sets the HMAC signing key. Keys shorter than 32 bytes are
// rejected.
func WithSecret(secret string) CodecOption {
	return func(c *Codec) error {
		if len(secret) < minSecretLen {
			return fmt.Errorf("auth: signing secret must be at least %d bytes", minSecretLen)
		}
		c.secret = []byte(secret)
		return nil
	}
}

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) error {
		if ttl <= 0 {
			return errors.New("auth: token ttl must be greater than zero")
		}
		c.ttl = ttl
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// NewCodec constructs a Codec with development defaults.
func NewCodec(opts ...CodecOption) (*Codec, error) {
	c := &Codec{
		secret: []byte(DevSecret),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue builds and signs a token for the user: subject is the username,
// the user's role names and effective permission names are flattened
// into comma-joined claim strings.
func (c *Codec) Issue(user *User) (string, error) {
	if user == nil || strings.TrimSpace(user.Username) == "" {
		return "", errors.New("auth: user with a username is required")
	}
	now := c.now().UTC()
	claims := &Claims{
		UserID:      user.ID,
		Email:       user.Email,
		Enabled:     user.Enabled,
		Roles:       strings.Join(user.RoleNames(), ","),
		Permissions: strings.Join(user.PermissionNames(), ","),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.NewString(),
		},
	}
	return c.sign(claims)
}

// Verify parses the token and checks signature, algorithm and expiry.
// Structural, signature and algorithm failures map to ErrTokenMalformed;
// a token that parses and verifies but is past its expiry maps to
// ErrTokenExpired.
func (c *Codec) Verify(token string) (*Claims, error) {
	claims, err := c.parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// IsExpired reports whether a parsable token is past its expiry. A
// token that cannot be parsed gives nothing to compare against, so the
// parse failure is surfaced instead of a guess.
func (c *Codec) IsExpired(token string) (bool, error) {
	_, err := c.Verify(token)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, ErrTokenExpired):
		return true, nil
	default:
		return false, err
	}
}

// Refresh re-signs the claim set of a currently valid token with a
// fresh issued-at and expiry. The store is deliberately not consulted,
// so role and permission claims keep the snapshot from the original
// issuance even if grants changed since.
func (c *Codec) Refresh(token string) (string, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return "", err
	}
	now := c.now().UTC()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	claims.ID = uuid.NewString()
	return c.sign(claims)
}

func (c *Codec) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, jwt.ErrTokenMalformed
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS512 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired(), jwt.WithIssuedAt())
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, jwt.ErrTokenMalformed
	}
	return claims, nil
}
