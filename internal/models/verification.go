package models

import "time"

// EmailVerification — единственный "живой" код на email.
// Новый запрос кода заменяет предыдущий (delete-then-insert в репозитории).
type EmailVerification struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SendAttempt — append-only запись о каждой отправке кода.
// Никогда не обновляется и не удаляется; нужна только для окон rate-limit.
type SendAttempt struct {
	ID       int64     `json:"id"`
	Email    string    `json:"email"`
	ClientIP string    `json:"client_ip"`
	SentAt   time.Time `json:"sent_at"`
}
