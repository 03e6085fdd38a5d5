package auth

import (
	"context"
	"fmt"
	"time"
)

// memStore is a map-backed Store used by the service and RBAC tests.
// Users and roles carry their relations by name so reads always
// resolve the current role and permission assignments.
type memStore struct {
	seq       int
	users     map[string]*User
	userRoles map[string][]string
	roles     map[string]*Role
	rolePerms map[string][]string
	perms     map[string]*Permission
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[string]*User),
		userRoles: make(map[string][]string),
		roles:     make(map[string]*Role),
		rolePerms: make(map[string][]string),
		perms:     make(map[string]*Permission),
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) resolveRole(name string) (Role, bool) {
	r, ok := m.roles[name]
	if !ok {
		return Role{}, false
	}
	out := *r
	out.Permissions = nil
	for _, pn := range m.rolePerms[name] {
		if p, ok := m.perms[pn]; ok {
			out.Permissions = append(out.Permissions, *p)
		}
	}
	return out, true
}

func (m *memStore) resolveUser(username string) (*User, bool) {
	u, ok := m.users[username]
	if !ok {
		return nil, false
	}
	out := *u
	out.Roles = nil
	for _, rn := range m.userRoles[username] {
		if r, ok := m.resolveRole(rn); ok {
			out.Roles = append(out.Roles, r)
		}
	}
	return &out, true
}

func (m *memStore) userByID(id string) (*User, bool) {
	for _, u := range m.users {
		if u.ID == id {
			return u, true
		}
	}
	return nil, false
}

func (m *memStore) roleByID(id string) (*Role, bool) {
	for _, r := range m.roles {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

func (m *memStore) permByID(id string) (*Permission, bool) {
	for _, p := range m.perms {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (m *memStore) FindUserByUsername(_ context.Context, username string) (*User, error) {
	u, ok := m.resolveUser(username)
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *memStore) CreateUser(_ context.Context, u *User) error {
	if _, ok := m.users[u.Username]; ok {
		return ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = m.nextID("user")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	stored := *u
	stored.Roles = nil
	m.users[u.Username] = &stored
	for _, r := range u.Roles {
		m.userRoles[u.Username] = append(m.userRoles[u.Username], r.Name)
	}
	return nil
}

func (m *memStore) SetUserEnabled(_ context.Context, username string, enabled bool) error {
	u, ok := m.users[username]
	if !ok {
		return ErrNotFound
	}
	u.Enabled = enabled
	return nil
}

func (m *memStore) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	u, ok := m.userByID(userID)
	if !ok {
		return ErrNotFound
	}
	t := at
	u.LastLogin = &t
	return nil
}

func (m *memStore) FindRoleByName(_ context.Context, name string) (*Role, error) {
	r, ok := m.resolveRole(name)
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *memStore) ListRoles(_ context.Context) ([]Role, error) {
	out := make([]Role, 0, len(m.roles))
	for name := range m.roles {
		r, _ := m.resolveRole(name)
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) CreateRole(_ context.Context, r *Role) error {
	if _, ok := m.roles[r.Name]; ok {
		return ErrAlreadyExists
	}
	if r.ID == "" {
		r.ID = m.nextID("role")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	stored := *r
	stored.Permissions = nil
	m.roles[r.Name] = &stored
	for _, p := range r.Permissions {
		m.rolePerms[r.Name] = append(m.rolePerms[r.Name], p.Name)
	}
	return nil
}

func (m *memStore) UpdateRoleDescription(_ context.Context, roleID, description string) error {
	r, ok := m.roleByID(roleID)
	if !ok {
		return ErrNotFound
	}
	r.Description = description
	return nil
}

func (m *memStore) DeleteRole(_ context.Context, roleID string) error {
	r, ok := m.roleByID(roleID)
	if !ok {
		return ErrNotFound
	}
	delete(m.rolePerms, r.Name)
	delete(m.roles, r.Name)
	return nil
}

func (m *memStore) CountUsersWithRole(_ context.Context, roleID string) (int, error) {
	r, ok := m.roleByID(roleID)
	if !ok {
		return 0, nil
	}
	count := 0
	for _, names := range m.userRoles {
		for _, n := range names {
			if n == r.Name {
				count++
				break
			}
		}
	}
	return count, nil
}

func (m *memStore) FindPermissionByName(_ context.Context, name string) (*Permission, error) {
	p, ok := m.perms[name]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (m *memStore) CreatePermission(_ context.Context, p *Permission) error {
	if _, ok := m.perms[p.Name]; ok {
		return ErrAlreadyExists
	}
	if p.ID == "" {
		p.ID = m.nextID("perm")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	stored := *p
	m.perms[p.Name] = &stored
	return nil
}

func (m *memStore) EnsurePermissions(ctx context.Context, perms []Permission) error {
	for i := range perms {
		if _, ok := m.perms[perms[i].Name]; ok {
			continue
		}
		p := perms[i]
		if err := m.CreatePermission(ctx, &p); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) AddPermissionToRole(_ context.Context, roleID, permissionID string) error {
	r, ok := m.roleByID(roleID)
	if !ok {
		return ErrNotFound
	}
	p, ok := m.permByID(permissionID)
	if !ok {
		return ErrNotFound
	}
	for _, n := range m.rolePerms[r.Name] {
		if n == p.Name {
			return nil
		}
	}
	m.rolePerms[r.Name] = append(m.rolePerms[r.Name], p.Name)
	return nil
}

func (m *memStore) RemovePermissionFromRole(_ context.Context, roleID, permissionID string) error {
	r, ok := m.roleByID(roleID)
	if !ok {
		return ErrNotFound
	}
	p, ok := m.permByID(permissionID)
	if !ok {
		return ErrNotFound
	}
	names := m.rolePerms[r.Name]
	for i, n := range names {
		if n == p.Name {
			m.rolePerms[r.Name] = append(names[:i], names[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) AddRoleToUser(_ context.Context, userID, roleID string) error {
	u, ok := m.userByID(userID)
	if !ok {
		return ErrNotFound
	}
	r, ok := m.roleByID(roleID)
	if !ok {
		return ErrNotFound
	}
	for _, n := range m.userRoles[u.Username] {
		if n == r.Name {
			return nil
		}
	}
	m.userRoles[u.Username] = append(m.userRoles[u.Username], r.Name)
	return nil
}

func (m *memStore) RemoveRoleFromUser(_ context.Context, userID, roleID string) error {
	u, ok := m.userByID(userID)
	if !ok {
		return ErrNotFound
	}
	r, ok := m.roleByID(roleID)
	if !ok {
		return ErrNotFound
	}
	names := m.userRoles[u.Username]
	for i, n := range names {
		if n == r.Name {
			m.userRoles[u.Username] = append(names[:i], names[i+1:]...)
			return nil
		}
	}
	return nil
}
