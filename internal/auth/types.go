package auth

import "time"

// User is an account that can authenticate against the service. Roles
// carry the permissions that get flattened into issued tokens.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Email        string     `json:"email,omitempty"`
	Enabled      bool       `json:"enabled"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	Roles        []Role     `json:"roles,omitempty"`
}

// Role groups permissions under a unique name.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission is a single (resource, action) capability. Name is the
// addressable key.
type Permission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Resource  string    `json:"resource"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// RoleNames returns the user's role names in stored order.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// PermissionNames returns the de-duplicated union of permission names
// across all of the user's roles, preserving first-seen order.
func (u *User) PermissionNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, role := range u.Roles {
		for _, p := range role.Permissions {
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			names = append(names, p.Name)
		}
	}
	return names
}

// HasRole reports whether the user currently holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// HasPermission reports whether any of the user's roles grants the
// named permission.
func (u *User) HasPermission(name string) bool {
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			if p.Name == name {
				return true
			}
		}
	}
	return false
}
