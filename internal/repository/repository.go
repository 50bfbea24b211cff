package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"typingschool/identity/internal/auth"
	"typingschool/identity/internal/model"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

const uniqueViolation = "23505"

const userColumns = `id, email, name, role, password_hash, grade, last_login_at, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
    SELECT `+userColumns+`
    FROM users
    WHERE lower(email) = lower($1)
  `, strings.TrimSpace(email))
	return scanUser(row)
}

// FindUserByID looks up id, optionally constrained to role.
func (s *Store) FindUserByID(ctx context.Context, id int64, role *auth.Role) (model.User, error) {
	var roleFilter *string
	if role != nil {
		value := string(*role)
		roleFilter = &value
	}
	row := s.pool.QueryRow(ctx, `
    SELECT `+userColumns+`
    FROM users
    WHERE id = $1 AND ($2::text IS NULL OR role = $2)
  `, id, roleFilter)
	return scanUser(row)
}

func (s *Store) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("update last_login_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
    INSERT INTO users (email, name, role, password_hash, grade, created_at, updated_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    RETURNING `+userColumns+`
  `, user.Email, user.Name, string(user.Role), user.PasswordHash, user.Grade, user.CreatedAt, user.UpdatedAt)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.User{}, ErrEmailTaken
		}
		return model.User{}, err
	}
	return created, nil
}

func (s *Store) ListUsers(ctx context.Context, role *auth.Role, limit int) ([]model.User, error) {
	var roleFilter *string
	if role != nil {
		value := string(*role)
		roleFilter = &value
	}
	rows, err := s.pool.Query(ctx, `
    SELECT `+userColumns+`
    FROM users
    WHERE ($1::text IS NULL OR role = $1)
    ORDER BY id
    LIMIT $2
  `, roleFilter, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users rows: %w", err)
	}
	return users, nil
}

func (s *Store) CountUsersByRole(ctx context.Context) (map[auth.Role]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT role, count(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	defer rows.Close()

	counts := make(map[auth.Role]int, len(auth.Roles()))
	for _, role := range auth.Roles() {
		counts[role] = 0
	}
	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		counts[auth.Role(role)] = count
	}
	return counts, rows.Err()
}

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	var role string
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&role,
		&user.PasswordHash,
		&user.Grade,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	user.Role = auth.Role(role)
	return user, nil
}
