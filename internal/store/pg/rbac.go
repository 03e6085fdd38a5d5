package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/storekit/identity/internal/auth"
	"github.com/storekit/identity/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

func (s *Store) FindRoleByName(ctx context.Context, name string) (*auth.Role, error) {
	var (
		role auth.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at
		from roles
		where name = $1
	`, name).Scan(&role.ID, &role.Name, &desc, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	perms, err := s.rolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var (
			role auth.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range roles {
		perms, err := s.rolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

func (s *Store) CreateRole(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into roles (id, name, description, created_at)
		values ($1, $2, $3, $4)
	`, role.ID, role.Name, nullIfEmpty(role.Description), role.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) UpdateRoleDescription(ctx context.Context, roleID, description string) error {
	res, err := s.db.ExecContext(ctx, `
		update roles set description = $2 where id = $1
	`, roleID, nullIfEmpty(description))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) CountUsersWithRole(ctx context.Context, roleID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from user_roles where role_id = $1
	`, roleID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) FindPermissionByName(ctx context.Context, name string) (*auth.Permission, error) {
	var p auth.Permission
	err := s.db.QueryRowContext(ctx, `
		select id, name, resource, action, created_at
		from permissions
		where name = $1
	`, name).Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreatePermission(ctx context.Context, perm *auth.Permission) error {
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	if perm.CreatedAt.IsZero() {
		perm.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into permissions (id, name, resource, action, created_at)
		values ($1, $2, $3, $4, $5)
	`, perm.ID, perm.Name, perm.Resource, perm.Action, perm.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (id, name, resource, action)
			values ($1, $2, $3, $4)
			on conflict (name) do nothing
		`, id, p.Name, p.Resource, p.Action); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AddPermissionToRole(ctx context.Context, roleID, permissionID string) error {
	if _, err := s.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		values ($1, $2)
		on conflict do nothing
	`, roleID, permissionID); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) RemovePermissionFromRole(ctx context.Context, roleID, permissionID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from role_permissions
		where role_id = $1 and permission_id = $2
	`, roleID, permissionID)
	return err
}

func (s *Store) AddRoleToUser(ctx context.Context, userID, roleID string) error {
	if _, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, userID, roleID); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) RemoveRoleFromUser(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
