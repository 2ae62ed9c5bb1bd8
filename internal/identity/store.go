package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/permissions"
)

// ErrNotFound indicates the requested role or user does not exist.
var ErrNotFound = errors.New("identity: not found")

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same store
// works inside and outside a unit of work.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store defines persistence operations for the identity subsystem.
type Store interface {
	GetRole(ctx context.Context, name string) (*Role, error)
	InsertRole(ctx context.Context, role *Role) error
	InsertRolePermission(ctx context.Context, roleID uuid.UUID, encoded string) error
	DeleteRolePermission(ctx context.Context, roleID uuid.UUID, encoded string) error
	RolePermissions(ctx context.Context, roleName string) ([]string, error)

	GetUser(ctx context.Context, id uuid.UUID) (*AuthUser, error)
	GetUserByEmail(ctx context.Context, email string) (*AuthUser, error)
	InsertUserRole(ctx context.Context, userID uuid.UUID, roleName string) error
	DeleteUserRole(ctx context.Context, userID uuid.UUID, roleName string) error
	InsertUserPermission(ctx context.Context, userID uuid.UUID, encoded string) error
	DeleteUserPermission(ctx context.Context, userID uuid.UUID, encoded string) error
	EffectivePermissions(ctx context.Context, userID uuid.UUID) (roles []string, encoded []string, err error)
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	q Querier
}

// NewStore constructs a store over a pool or transaction.
func NewStore(q Querier) *PGStore {
	return &PGStore{q: q}
}

// GetRole fetches a role and its permissions by case-insensitive name.
func (s *PGStore) GetRole(ctx context.Context, name string) (*Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	var (
		id       uuid.UUID
		roleName string
	)
	err := s.q.QueryRow(ctx,
		`SELECT id, name FROM roles WHERE lower(name) = $1`, name,
	).Scan(&id, &roleName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	encoded, err := s.rolePermissionsByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// A corrupt stored token must not make the role unreadable; ParseSet
	// drops bad entries.
	set, _ := permissions.ParseSet(encoded)
	return RehydrateRole(id, roleName, set), nil
}

// InsertRole persists a new role. A duplicate name maps to a unique violation
// from the database.
func (s *PGStore) InsertRole(ctx context.Context, role *Role) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO roles (id, name) VALUES ($1, $2)`, role.ID, role.Name)
	return err
}

// InsertRolePermission attaches an encoded permission to a role. Idempotent.
func (s *PGStore) InsertRolePermission(ctx context.Context, roleID uuid.UUID, encoded string) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission) VALUES ($1, $2)
		 ON CONFLICT (role_id, permission) DO NOTHING`, roleID, encoded)
	return err
}

// DeleteRolePermission detaches an encoded permission from a role.
func (s *PGStore) DeleteRolePermission(ctx context.Context, roleID uuid.UUID, encoded string) error {
	_, err := s.q.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission = $2`, roleID, encoded)
	return err
}

// RolePermissions returns the encoded permissions of a role by name.
func (s *PGStore) RolePermissions(ctx context.Context, roleName string) ([]string, error) {
	roleName = strings.ToLower(strings.TrimSpace(roleName))
	var id uuid.UUID
	err := s.q.QueryRow(ctx, `SELECT id FROM roles WHERE lower(name) = $1`, roleName).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.rolePermissionsByID(ctx, id)
}

func (s *PGStore) rolePermissionsByID(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	rows, err := s.q.Query(ctx,
		`SELECT permission FROM role_permissions WHERE role_id = $1 ORDER BY permission`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetUser fetches a user with direct permissions and role memberships.
func (s *PGStore) GetUser(ctx context.Context, id uuid.UUID) (*AuthUser, error) {
	return s.getUser(ctx, `SELECT id, subject, email, password_hash FROM users WHERE id = $1`, id)
}

// GetUserByEmail fetches a user by email, used by the login flow.
func (s *PGStore) GetUserByEmail(ctx context.Context, email string) (*AuthUser, error) {
	return s.getUser(ctx, `SELECT id, subject, email, password_hash FROM users WHERE lower(email) = $1`,
		strings.ToLower(strings.TrimSpace(email)))
}

func (s *PGStore) getUser(ctx context.Context, query string, arg any) (*AuthUser, error) {
	var (
		id                      uuid.UUID
		subject, email, pwdHash string
	)
	err := s.q.QueryRow(ctx, query, arg).Scan(&id, &subject, &email, &pwdHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	encoded, err := s.userPermissionTokens(ctx, id)
	if err != nil {
		return nil, err
	}
	roles, err := s.userRoleNames(ctx, id)
	if err != nil {
		return nil, err
	}
	set, _ := permissions.ParseSet(encoded)
	return RehydrateUser(id, subject, email, pwdHash, set, roles), nil
}

// InsertUserRole links a user to a role by name. Idempotent; an unknown role
// maps to ErrNotFound.
func (s *PGStore) InsertUserRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id)
		 SELECT $1, id FROM roles WHERE lower(name) = $2
		 ON CONFLICT (user_id, role_id) DO NOTHING`,
		userID, strings.ToLower(strings.TrimSpace(roleName)))
	return err
}

// DeleteUserRole unlinks a user from a role by name.
func (s *PGStore) DeleteUserRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	_, err := s.q.Exec(ctx,
		`DELETE FROM user_roles
		 WHERE user_id = $1 AND role_id IN (SELECT id FROM roles WHERE lower(name) = $2)`,
		userID, strings.ToLower(strings.TrimSpace(roleName)))
	return err
}

// InsertUserPermission attaches an encoded direct permission. Idempotent.
func (s *PGStore) InsertUserPermission(ctx context.Context, userID uuid.UUID, encoded string) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO user_permissions (user_id, permission) VALUES ($1, $2)
		 ON CONFLICT (user_id, permission) DO NOTHING`, userID, encoded)
	return err
}

// DeleteUserPermission detaches an encoded direct permission.
func (s *PGStore) DeleteUserPermission(ctx context.Context, userID uuid.UUID, encoded string) error {
	_, err := s.q.Exec(ctx,
		`DELETE FROM user_permissions WHERE user_id = $1 AND permission = $2`, userID, encoded)
	return err
}

// EffectivePermissions returns the user's role names and the deduplicated
// union of direct and role permissions, recomputed from the source of truth.
func (s *PGStore) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]string, []string, error) {
	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, ErrNotFound
	}

	roles, err := s.userRoleNames(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.q.Query(ctx,
		`SELECT permission FROM user_permissions WHERE user_id = $1
		 UNION
		 SELECT rp.permission
		 FROM role_permissions rp
		 JOIN user_roles ur ON ur.role_id = rp.role_id
		 WHERE ur.user_id = $1
		 ORDER BY permission`, userID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var encoded []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, nil, err
		}
		encoded = append(encoded, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return roles, encoded, nil
}

func (s *PGStore) userPermissionTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := s.q.Query(ctx,
		`SELECT permission FROM user_permissions WHERE user_id = $1 ORDER BY permission`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) userRoleNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := s.q.Query(ctx,
		`SELECT r.name FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1 ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

var _ Store = (*PGStore)(nil)
