package auth

import (
	"context"
	"time"
)

// Store describes persistence required by the auth subsystem. User and
// role reads return the aggregate: a user's roles arrive populated with
// their permissions. Missing entities map to ErrNotFound, uniqueness
// violations to ErrAlreadyExists; anything else is a store failure and
// propagates as-is.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	SetUserEnabled(ctx context.Context, username string, enabled bool) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	FindRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, role *Role) error
	UpdateRoleDescription(ctx context.Context, roleID, description string) error
	DeleteRole(ctx context.Context, roleID string) error
	CountUsersWithRole(ctx context.Context, roleID string) (int, error)

	FindPermissionByName(ctx context.Context, name string) (*Permission, error)
	CreatePermission(ctx context.Context, perm *Permission) error
	EnsurePermissions(ctx context.Context, perms []Permission) error

	AddPermissionToRole(ctx context.Context, roleID, permissionID string) error
	RemovePermissionFromRole(ctx context.Context, roleID, permissionID string) error
	AddRoleToUser(ctx context.Context, userID, roleID string) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID string) error
}
