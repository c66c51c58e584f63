package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"chatrelay/internal/models"
)

type SendAttemptRepository interface {
	Create(email, clientIP string, sentAt time.Time) error
	ListRecentByEmail(email string, since time.Time) ([]*models.SendAttempt, error)
	CountRecentByIP(clientIP string, since time.Time) (int, error)
}

type sendAttemptRepository struct {
	DB *sql.DB
}

func NewSendAttemptRepository(db *sql.DB) SendAttemptRepository {
	return &sendAttemptRepository{DB: db}
}

func (r *sendAttemptRepository) Create(email, clientIP string, sentAt time.Time) error {
	const q = `
		INSERT INTO send_attempts (email, client_ip, sent_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.DB.Exec(q, email, clientIP, sentAt); err != nil {
		return fmt.Errorf("send_attempt create: %w", err)
	}
	return nil
}

// ListRecentByEmail — попытки внутри окна, свежие первыми (первый элемент =
// последняя отправка, от неё якорится блокировка).
func (r *sendAttemptRepository) ListRecentByEmail(email string, since time.Time) ([]*models.SendAttempt, error) {
	const q = `
		SELECT id, email, client_ip, sent_at
		FROM send_attempts
		WHERE email = $1 AND sent_at > $2
		ORDER BY sent_at DESC
	`
	rows, err := r.DB.Query(q, email, since)
	if err != nil {
		return nil, fmt.Errorf("send_attempt list recent: %w", err)
	}
	defer rows.Close()

	var attempts []*models.SendAttempt
	for rows.Next() {
		var a models.SendAttempt
		if err := rows.Scan(&a.ID, &a.Email, &a.ClientIP, &a.SentAt); err != nil {
			return nil, fmt.Errorf("send_attempt scan: %w", err)
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

func (r *sendAttemptRepository) CountRecentByIP(clientIP string, since time.Time) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM send_attempts
		WHERE client_ip = $1 AND sent_at > $2
	`
	var c int
	if err := r.DB.QueryRow(q, clientIP, since).Scan(&c); err != nil {
		return 0, fmt.Errorf("send_attempt count by ip: %w", err)
	}
	return c, nil
}
