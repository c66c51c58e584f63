package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"chatrelay/internal/models"
)

type UserRepository interface {
	Create(user *models.User) error
	GetByID(id int) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	MarkVerified(email string) error
	UpdateRefresh(userID int, token string, expiresAt time.Time) error
	GetByRefreshToken(token string) (*models.User, error)
	RotateRefresh(oldToken, newToken string, expiresAt time.Time) (*models.User, error)
}

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

func (r *userRepository) Create(user *models.User) error {
	const q = `
		INSERT INTO users (email, password_hash, verified)
		VALUES ($1, $2, FALSE)
		RETURNING id, created_at
	`
	if err := r.DB.QueryRow(q, user.Email, user.PasswordHash).Scan(&user.ID, &user.CreatedAt); err != nil {
		return fmt.Errorf("user create: %w", err)
	}
	return nil
}

func (r *userRepository) GetByID(id int) (*models.User, error) {
	const q = `
		SELECT id, email, password_hash, verified, created_at,
		       refresh_token, refresh_expires_at, refresh_revoked
		FROM users
		WHERE id = $1
	`
	return r.scanOne(r.DB.QueryRow(q, id))
}

func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	const q = `
		SELECT id, email, password_hash, verified, created_at,
		       refresh_token, refresh_expires_at, refresh_revoked
		FROM users
		WHERE email = $1
	`
	return r.scanOne(r.DB.QueryRow(q, email))
}

func (r *userRepository) MarkVerified(email string) error {
	if _, err := r.DB.Exec(`UPDATE users SET verified = TRUE WHERE email = $1`, email); err != nil {
		return fmt.Errorf("user mark verified: %w", err)
	}
	return nil
}

func (r *userRepository) UpdateRefresh(userID int, token string, expiresAt time.Time) error {
	const q = `
		UPDATE users
		SET refresh_token = $1, refresh_expires_at = $2, refresh_revoked = FALSE
		WHERE id = $3
	`
	if _, err := r.DB.Exec(q, token, expiresAt, userID); err != nil {
		return fmt.Errorf("user update refresh: %w", err)
	}
	return nil
}

func (r *userRepository) GetByRefreshToken(token string) (*models.User, error) {
	const q = `
		SELECT id, email, password_hash, verified, created_at,
		       refresh_token, refresh_expires_at, refresh_revoked
		FROM users
		WHERE refresh_token = $1
	`
	return r.scanOne(r.DB.QueryRow(q, token))
}

// RotateRefresh — атомарно меняем старый refresh на новый; защищает от повторного
// использования старого токена двумя клиентами.
func (r *userRepository) RotateRefresh(oldToken, newToken string, expiresAt time.Time) (*models.User, error) {
	const q = `
		UPDATE users
		SET refresh_token = $1, refresh_expires_at = $2
		WHERE refresh_token = $3 AND refresh_revoked = FALSE
		RETURNING id, email, password_hash, verified, created_at,
		          refresh_token, refresh_expires_at, refresh_revoked
	`
	return r.scanOne(r.DB.QueryRow(q, newToken, expiresAt, oldToken))
}

func (r *userRepository) scanOne(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Verified, &u.CreatedAt,
		&u.RefreshToken, &u.RefreshExpiresAt, &u.RefreshRevoked,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("user scan: %w", err)
	}
	return &u, nil
}
