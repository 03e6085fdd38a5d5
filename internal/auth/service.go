package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultRoleName is attached to newly registered accounts when it
// exists in the store; otherwise the account starts role-less.
const DefaultRoleName = "USER"

// Service verifies credentials, registers accounts and issues session
// tokens backed by the credential store.
type Service struct {
	store Store
	codec *Codec
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service over the given store and token codec.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	svc := &Service{store: store, codec: codec, now: time.Now}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Login verifies the credential pair against the store. Unknown
// username, wrong password and disabled account all collapse to
// ErrInvalidCredentials so the caller cannot tell the branches apart,
// and every branch pays for one hash comparison. On success the
// last-login timestamp is persisted before the user is returned.
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		verifyDummyPassword(password)
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			verifyDummyPassword(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Enabled {
		return nil, ErrInvalidCredentials
	}
	now := s.now().UTC()
	if err := s.store.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now
	return user, nil
}

// Register creates a new account: the plaintext password is hashed
// before it is stored and the default role is attached when present.
// An already-taken username yields ErrDuplicateAccount and no account.
func (s *Service) Register(ctx context.Context, username, password, email string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if _, err := s.store.FindUserByUsername(ctx, username); err == nil {
		return nil, ErrDuplicateAccount
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Username:     username,
		PasswordHash: hash,
		Email:        strings.TrimSpace(email),
		Enabled:      true,
		CreatedAt:    s.now().UTC(),
	}
	role, err := s.store.FindRoleByName(ctx, DefaultRoleName)
	switch {
	case err == nil:
		user.Roles = append(user.Roles, *role)
	case errors.Is(err, ErrNotFound):
		// no default role seeded; account starts role-less
	default:
		return nil, err
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrDuplicateAccount
		}
		return nil, err
	}
	return user, nil
}

// IssueToken mints a session token carrying the user's identity and a
// snapshot of role/permission claims.
func (s *Service) IssueToken(user *User) (string, error) {
	return s.codec.Issue(user)
}

// RefreshToken re-signs a currently valid token; the embedded claims
// snapshot is kept as-is.
func (s *Service) RefreshToken(token string) (string, error) {
	return s.codec.Refresh(token)
}

// FindUser loads a user aggregate by username.
func (s *Service) FindUser(ctx context.Context, username string) (*User, error) {
	return s.store.FindUserByUsername(ctx, username)
}

// SetUserEnabled toggles whether an account may authenticate. Tokens
// already issued for a disabled account stay valid until they expire.
func (s *Service) SetUserEnabled(ctx context.Context, username string, enabled bool) error {
	return s.store.SetUserEnabled(ctx, username, enabled)
}

// HasPermission checks the user's effective permissions against the
// current store state, not the snapshot inside any issued token.
func (s *Service) HasPermission(ctx context.Context, username, permission string) (bool, error) {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.HasPermission(permission), nil
}

// HasRole checks the user's current roles against the store state.
func (s *Service) HasRole(ctx context.Context, username, role string) (bool, error) {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.HasRole(role), nil
}
