package auth

import "context"

// Identity is the request-scoped authenticated identity installed by
// the authentication filter and consulted by downstream policy checks.
type Identity struct {
	Principal   string
	Authorities []string
}

// HasAuthority reports whether the identity carries the named authority
// (ROLE_<name> or a bare permission name).
func (id Identity) HasAuthority(name string) bool {
	for _, a := range id.Authorities {
		if a == name {
			return true
		}
	}
	return false
}

// HasAnyAuthority reports whether the identity carries at least one of
// the named authorities.
func (id Identity) HasAnyAuthority(names ...string) bool {
	for _, n := range names {
		if id.HasAuthority(n) {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}
