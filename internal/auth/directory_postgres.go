package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kaitanna/kaitanna-backend/internal/models"
	"github.com/lib/pq"
)

const userColumns = `id, username, email, password_hash, avatar_url, created_at, updated_at`

// PostgresDirectory keeps users in the users table.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Create(ctx context.Context, u models.User) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.AvatarURL, u.CreatedAt, u.UpdatedAt)
	return conflictError(err)
}

func (d *PostgresDirectory) ByID(ctx context.Context, id string) (*models.User, error) {
	return d.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE id::text = $1`, id)
}

func (d *PostgresDirectory) ByUsername(ctx context.Context, username string) (*models.User, error) {
	return d.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1)`, username)
}

func (d *PostgresDirectory) ByEmail(ctx context.Context, email string) (*models.User, error) {
	return d.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = LOWER($1)`, email)
}

func (d *PostgresDirectory) Update(ctx context.Context, u models.User) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE users SET username = $2, avatar_url = $3, updated_at = $4
		WHERE id::text = $1
	`, u.ID, u.Username, u.AvatarURL, u.UpdatedAt)
	if err != nil {
		return conflictError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (d *PostgresDirectory) Delete(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE id::text = $1`, id)
	return err
}

func (d *PostgresDirectory) queryOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var u models.User
	err := d.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// conflictError maps unique violations onto the signup conflict errors.
func conflictError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return err
	}
	switch pqErr.Constraint {
	case "users_email_key":
		return ErrEmailTaken
	default:
		return ErrUsernameTaken
	}
}
