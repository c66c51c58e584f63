package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strings"
	"time"

	"chatrelay/internal/repositories"
)

var (
	ErrUnknownDestination   = errors.New("unknown destination")
	ErrCodeInvalidOrExpired = errors.New("code invalid or expired")
	ErrSendFailed           = errors.New("verification email send failed")
)

// Настройки троттлинга (фиксированы на этапе компиляции)
const (
	sendWindow    = 15 * time.Minute
	maxSends      = 5
	blockDuration = 15 * time.Minute
	maxSendsPerIP = 3 * maxSends
	codeTTL       = 5 * time.Minute
)

// RateLimitedError — отказ по лимиту отправок. Reason "email" несёт подсказку
// retry_after, Reason "ip" — нет.
type RateLimitedError struct {
	Reason            string
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	if e.Reason == "ip" {
		return "too many requests from this address"
	}
	return fmt.Sprintf("too many requests, retry after %ds", e.RetryAfterSeconds)
}

type OTPService struct {
	Codes    repositories.VerificationRepository
	Attempts repositories.SendAttemptRepository
	Users    repositories.UserRepository
	Emails   EmailService

	now func() time.Time
}

func NewOTPService(
	codes repositories.VerificationRepository,
	attempts repositories.SendAttemptRepository,
	users repositories.UserRepository,
	emails EmailService,
) *OTPService {
	return &OTPService{
		Codes:    codes,
		Attempts: attempts,
		Users:    users,
		Emails:   emails,
		now:      time.Now,
	}
}

// generateCode — равномерно случайный 6-значный код, ведущий ноль
// невозможен по построению.
func (s *OTPService) generateCode() string {
	return fmt.Sprintf("%d", 100000+rand.Intn(900000))
}

// RequestCode — решает, можно ли (пере)отправить код на email, и если да —
// генерирует, сохраняет и отправляет его.
//
// Два независимых лимита:
//   - по email: не больше maxSends за окно; блок якорится к ПОСЛЕДНЕЙ попытке,
//     а не к границе окна, так что продолжающиеся попытки продлевают блок;
//   - по IP: не больше maxSendsPerIP за то же окно по всем адресатам.
//
// Попытка записывается до обращения к SMTP: неудачная отправка всё равно
// стоит место в окне.
func (s *OTPService) RequestCode(email, clientIP string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	now := s.now()
	windowStart := now.Add(-sendWindow)

	attempts, err := s.Attempts.ListRecentByEmail(email, windowStart)
	if err != nil {
		return err
	}
	if len(attempts) >= maxSends {
		blockedUntil := attempts[0].SentAt.Add(blockDuration)
		if blockedUntil.After(now) {
			retryAfter := int(math.Ceil(blockedUntil.Sub(now).Seconds()))
			log.Printf("[otp][request] throttled email=%q retry_after=%ds", email, retryAfter)
			return &RateLimitedError{Reason: "email", RetryAfterSeconds: retryAfter}
		}
		// окно с последней попытки истекло — пропускаем, несмотря на счётчик
	}

	ipCount, err := s.Attempts.CountRecentByIP(clientIP, windowStart)
	if err != nil {
		return err
	}
	if ipCount >= maxSendsPerIP {
		log.Printf("[otp][request] throttled ip=%q count=%d", clientIP, ipCount)
		return &RateLimitedError{Reason: "ip"}
	}

	user, err := s.Users.GetByEmail(email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUnknownDestination
	}

	code := s.generateCode()
	expiresAt := now.Add(codeTTL)

	if err := s.Codes.Replace(email, code, expiresAt); err != nil {
		return err
	}
	if err := s.Attempts.Create(email, clientIP, now); err != nil {
		return err
	}

	if err := s.Emails.SendVerificationCode(email, code); err != nil {
		log.Printf("[otp][request] send failed email=%q: %v", email, err)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	log.Printf("[otp][request] sent email=%q ip=%q", email, clientIP)
	return nil
}

// VerifyCode — точное строковое сравнение, срок проверяется при чтении.
// Код одноразовый: при успехе удаляется.
func (s *OTPService) VerifyCode(email, code string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	v, err := s.Codes.GetByEmail(email)
	if err != nil {
		return err
	}
	if v == nil || v.Code != code {
		return ErrCodeInvalidOrExpired
	}
	if v.ExpiresAt.Before(s.now()) {
		return ErrCodeInvalidOrExpired
	}

	if err := s.Users.MarkVerified(email); err != nil {
		return err
	}
	if err := s.Codes.DeleteByEmail(email); err != nil {
		return err
	}
	log.Printf("[otp][verify] OK email=%q", email)
	return nil
}
