package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"chatrelay/internal/models"
)

type VerificationRepository interface {
	Replace(email, code string, expiresAt time.Time) error
	GetByEmail(email string) (*models.EmailVerification, error)
	DeleteByEmail(email string) error
}

type verificationRepository struct {
	DB *sql.DB
}

func NewVerificationRepository(db *sql.DB) VerificationRepository {
	return &verificationRepository{DB: db}
}

// Replace — на email живёт максимум один код: старый удаляем, новый вставляем
// в одной транзакции.
func (r *verificationRepository) Replace(email, code string, expiresAt time.Time) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("verification replace begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM email_verifications WHERE email = $1`, email); err != nil {
		return fmt.Errorf("verification replace delete: %w", err)
	}
	const q = `
		INSERT INTO email_verifications (email, code, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.Exec(q, email, code, expiresAt); err != nil {
		return fmt.Errorf("verification replace insert: %w", err)
	}
	return tx.Commit()
}

func (r *verificationRepository) GetByEmail(email string) (*models.EmailVerification, error) {
	const q = `
		SELECT id, email, code, expires_at
		FROM email_verifications
		WHERE email = $1
	`
	row := r.DB.QueryRow(q, email)
	var v models.EmailVerification
	if err := row.Scan(&v.ID, &v.Email, &v.Code, &v.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("verification get: %w", err)
	}
	return &v, nil
}

func (r *verificationRepository) DeleteByEmail(email string) error {
	if _, err := r.DB.Exec(`DELETE FROM email_verifications WHERE email = $1`, email); err != nil {
		return fmt.Errorf("verification delete: %w", err)
	}
	return nil
}
