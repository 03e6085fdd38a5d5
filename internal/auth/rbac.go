package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RBACService mutates the role/permission and user/role graphs. Add
// operations are strict about missing entities; remove operations are
// lenient no-ops when the relationship target is already gone. Callers
// depend on that asymmetry.
type RBACService struct {
	store Store
}

// NewRBACService constructs an RBACService.
func NewRBACService(store Store) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &RBACService{store: store}, nil
}

// EnsureBuiltins seeds the builtin permission catalog idempotently.
func (s *RBACService) EnsureBuiltins(ctx context.Context) error {
	return s.store.EnsurePermissions(ctx, BuiltinPermissions)
}

// CreateRole creates a role with a unique name.
func (s *RBACService) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if _, err := s.store.FindRoleByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: role %s", ErrAlreadyExists, name)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	role := &Role{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles returns all roles with their permissions.
func (s *RBACService) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// UpdateRole replaces the role's description and returns the updated
// entity. A missing role is an error.
func (s *RBACService) UpdateRole(ctx context.Context, name, newDescription string) (*Role, error) {
	role, err := s.store.FindRoleByName(ctx, name)
	if err != nil {
		return nil, err
	}
	newDescription = strings.TrimSpace(newDescription)
	if err := s.store.UpdateRoleDescription(ctx, role.ID, newDescription); err != nil {
		return nil, err
	}
	role.Description = newDescription
	return role, nil
}

// DeleteRole removes an unused role. A role held by at least one user
// cannot be deleted; a role that does not exist is a no-op.
func (s *RBACService) DeleteRole(ctx context.Context, name string) error {
	role, err := s.store.FindRoleByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	holders, err := s.store.CountUsersWithRole(ctx, role.ID)
	if err != nil {
		return err
	}
	if holders > 0 {
		return fmt.Errorf("%w: %s", ErrRoleInUse, role.Name)
	}
	return s.store.DeleteRole(ctx, role.ID)
}

// RolePermissions returns the permission set attached to a role.
func (s *RBACService) RolePermissions(ctx context.Context, roleName string) ([]Permission, error) {
	role, err := s.store.FindRoleByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	return role.Permissions, nil
}

// AddPermissionToRole grants a permission to a role. Both sides must
// exist. Granting an already-held permission is a no-op.
func (s *RBACService) AddPermissionToRole(ctx context.Context, roleName, permissionName string) error {
	role, err := s.store.FindRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	perm, err := s.store.FindPermissionByName(ctx, permissionName)
	if err != nil {
		return err
	}
	return s.store.AddPermissionToRole(ctx, role.ID, perm.ID)
}

// RemovePermissionFromRole revokes a permission from a role. When
// either side is missing the call is a silent no-op.
func (s *RBACService) RemovePermissionFromRole(ctx context.Context, roleName, permissionName string) error {
	role, err := s.store.FindRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	perm, err := s.store.FindPermissionByName(ctx, permissionName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.store.RemovePermissionFromRole(ctx, role.ID, perm.ID)
}

// AddRoleToUser grants a role to a user. Both sides must exist.
func (s *RBACService) AddRoleToUser(ctx context.Context, username, roleName string) error {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	role, err := s.store.FindRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	return s.store.AddRoleToUser(ctx, user.ID, role.ID)
}

// RemoveRoleFromUser revokes a role from a user. A missing user is an
// error; a missing role is a silent no-op.
func (s *RBACService) RemoveRoleFromUser(ctx context.Context, username, roleName string) error {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	role, err := s.store.FindRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.store.RemoveRoleFromUser(ctx, user.ID, role.ID)
}

// UserRoles returns the roles currently held by a user.
func (s *RBACService) UserRoles(ctx context.Context, username string) ([]Role, error) {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return user.Roles, nil
}

// CreatePermission registers a new (resource, action) capability under
// a unique name.
func (s *RBACService) CreatePermission(ctx context.Context, name, resource, action string) (*Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	if _, err := s.store.FindPermissionByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: permission %s", ErrAlreadyExists, name)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	perm := &Permission{
		Name:     name,
		Resource: strings.TrimSpace(resource),
		Action:   strings.TrimSpace(action),
	}
	if err := s.store.CreatePermission(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}
