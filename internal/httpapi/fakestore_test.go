package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/storekit/identity/internal/auth"
)

// fakeStore is a map-backed auth.Store used by the handler tests.
type fakeStore struct {
	seq       int
	users     map[string]*auth.User
	userRoles map[string][]string
	roles     map[string]*auth.Role
	rolePerms map[string][]string
	perms     map[string]*auth.Permission
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]*auth.User),
		userRoles: make(map[string][]string),
		roles:     make(map[string]*auth.Role),
		rolePerms: make(map[string][]string),
		perms:     make(map[string]*auth.Permission),
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeStore) resolveRole(name string) (auth.Role, bool) {
	r, ok := f.roles[name]
	if !ok {
		return auth.Role{}, false
	}
	out := *r
	out.Permissions = nil
	for _, pn := range f.rolePerms[name] {
		if p, ok := f.perms[pn]; ok {
			out.Permissions = append(out.Permissions, *p)
		}
	}
	return out, true
}

func (f *fakeStore) userByID(id string) (*auth.User, bool) {
	for _, u := range f.users {
		if u.ID == id {
			return u, true
		}
	}
	return nil, false
}

func (f *fakeStore) roleByID(id string) (*auth.Role, bool) {
	for _, r := range f.roles {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

func (f *fakeStore) permByID(id string) (*auth.Permission, bool) {
	for _, p := range f.perms {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (f *fakeStore) FindUserByUsername(_ context.Context, username string) (*auth.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *u
	out.Roles = nil
	for _, rn := range f.userRoles[username] {
		if r, ok := f.resolveRole(rn); ok {
			out.Roles = append(out.Roles, r)
		}
	}
	return &out, nil
}

func (f *fakeStore) CreateUser(_ context.Context, u *auth.User) error {
	if _, ok := f.users[u.Username]; ok {
		return auth.ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = f.nextID("user")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	stored := *u
	stored.Roles = nil
	f.users[u.Username] = &stored
	for _, r := range u.Roles {
		f.userRoles[u.Username] = append(f.userRoles[u.Username], r.Name)
	}
	return nil
}

func (f *fakeStore) SetUserEnabled(_ context.Context, username string, enabled bool) error {
	u, ok := f.users[username]
	if !ok {
		return auth.ErrNotFound
	}
	u.Enabled = enabled
	return nil
}

func (f *fakeStore) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	u, ok := f.userByID(userID)
	if !ok {
		return auth.ErrNotFound
	}
	t := at
	u.LastLogin = &t
	return nil
}

func (f *fakeStore) FindRoleByName(_ context.Context, name string) (*auth.Role, error) {
	r, ok := f.resolveRole(name)
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &r, nil
}

func (f *fakeStore) ListRoles(_ context.Context) ([]auth.Role, error) {
	out := make([]auth.Role, 0, len(f.roles))
	for name := range f.roles {
		r, _ := f.resolveRole(name)
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) CreateRole(_ context.Context, r *auth.Role) error {
	if _, ok := f.roles[r.Name]; ok {
		return auth.ErrAlreadyExists
	}
	if r.ID == "" {
		r.ID = f.nextID("role")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	stored := *r
	stored.Permissions = nil
	f.roles[r.Name] = &stored
	for _, p := range r.Permissions {
		f.rolePerms[r.Name] = append(f.rolePerms[r.Name], p.Name)
	}
	return nil
}

func (f *fakeStore) UpdateRoleDescription(_ context.Context, roleID, description string) error {
	r, ok := f.roleByID(roleID)
	if !ok {
		return auth.ErrNotFound
	}
	r.Description = description
	return nil
}

func (f *fakeStore) DeleteRole(_ context.Context, roleID string) error {
	r, ok := f.roleByID(roleID)
	if !ok {
		return auth.ErrNotFound
	}
	delete(f.rolePerms, r.Name)
	delete(f.roles, r.Name)
	return nil
}

func (f *fakeStore) CountUsersWithRole(_ context.Context, roleID string) (int, error) {
	r, ok := f.roleByID(roleID)
	if !ok {
		return 0, nil
	}
	count := 0
	for _, names := range f.userRoles {
		for _, n := range names {
			if n == r.Name {
				count++
				break
			}
		}
	}
	return count, nil
}

func (f *fakeStore) FindPermissionByName(_ context.Context, name string) (*auth.Permission, error) {
	p, ok := f.perms[name]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (f *fakeStore) CreatePermission(_ context.Context, p *auth.Permission) error {
	if _, ok := f.perms[p.Name]; ok {
		return auth.ErrAlreadyExists
	}
	if p.ID == "" {
		p.ID = f.nextID("perm")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	stored := *p
	f.perms[p.Name] = &stored
	return nil
}

func (f *fakeStore) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	for i := range perms {
		if _, ok := f.perms[perms[i].Name]; ok {
			continue
		}
		p := perms[i]
		if err := f.CreatePermission(ctx, &p); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) AddPermissionToRole(_ context.Context, roleID, permissionID string) error {
	r, ok := f.roleByID(roleID)
	if !ok {
		return auth.ErrNotFound
	}
	p, ok := f.permByID(permissionID)
	if !ok {
		return auth.ErrNotFound
	}
	for _, n := range f.rolePerms[r.Name] {
		if n == p.Name {
			return nil
		}
	}
	f.rolePerms[r.Name] = append(f.rolePerms[r.Name], p.Name)
	return nil
}

func (f *fakeStore) RemovePermissionFromRole(_ context.Context, roleID, permissionID string) error {
	r, ok := f.roleByID(roleID)
	if !ok {
		return auth.ErrNotFound
	}
	p, ok := f.permByID(permissionID)
	if !ok {
		return auth.ErrNotFound
	}
	names := f.rolePerms[r.Name]
	for i, n := range names {
		if n == p.Name {
			f.rolePerms[r.Name] = append(names[:i], names[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) AddRoleToUser(_ context.Context, userID, roleID string) error {
	u, ok := f.userByID(userID)
	if !ok {
		return auth.ErrNotFound
	}
	r, ok := f.roleByID(roleID)
	if !ok {
		return auth.ErrNotFound
	}
	for _, n := range f.userRoles[u.Username] {
		if n == r.Name {
			return nil
		}
	}
	f.userRoles[u.Username] = append(f.userRoles[u.Username], r.Name)
	return nil
}

func (f *fakeStore) RemoveRoleFromUser(_ context.Context, userID, roleID string) error {
	u, ok := f.userByID(userID)
	if !ok {
		return auth.ErrNotFound
	}
	r, ok := f.roleByID(roleID)
	if !ok {
		return auth.ErrNotFound
	}
	names := f.userRoles[u.Username]
	for i, n := range names {
		if n == r.Name {
			f.userRoles[u.Username] = append(names[:i], names[i+1:]...)
			return nil
		}
	}
	return nil
}

// --- harness ---

type testAPI struct {
	api   *API
	store *fakeStore
	codec *auth.Codec
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := newFakeStore()
	codec, err := auth.NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc, err := auth.NewService(store, codec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	rbac, err := auth.NewRBACService(store)
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}
	return &testAPI{
		api:   New(svc, rbac, codec, ReadyProbe{}, "test"),
		store: store,
		codec: codec,
	}
}

func (ta *testAPI) seedUser(t *testing.T, username, password string, roles ...string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &auth.User{
		Username:     username,
		PasswordHash: hash,
		Email:        username + "@example.com",
		Enabled:      true,
	}
	for _, name := range roles {
		if _, ok := ta.store.roles[name]; !ok {
			if err := ta.store.CreateRole(context.Background(), &auth.Role{Name: name}); err != nil {
				t.Fatalf("CreateRole: %v", err)
			}
		}
		u.Roles = append(u.Roles, *ta.store.roles[name])
	}
	if err := ta.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func (ta *testAPI) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ta.api.Handler().ServeHTTP(rr, req)
	return rr
}

func (ta *testAPI) tokenFor(t *testing.T, username string) string {
	t.Helper()
	user, err := ta.store.FindUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("FindUserByUsername: %v", err)
	}
	token, err := ta.codec.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}
