package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"chatrelay/internal/models"
	"chatrelay/internal/repositories"
)

var ErrEmailTaken = errors.New("email already registered")

type UserService interface {
	Register(email, password string) (*models.User, error)
	GetUserByID(id int) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	UpdateRefresh(userID int, token string, expiresAt time.Time) error
	GetByRefreshToken(token string) (*models.User, error)
	RotateRefresh(oldToken, newToken string, expiresAt time.Time) (*models.User, error)
}

type userService struct {
	repo repositories.UserRepository
	auth AuthService
}

func NewUserService(repo repositories.UserRepository, auth AuthService) UserService {
	return &userService{repo: repo, auth: auth}
}

func (s *userService) Register(email, password string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("password is required")
	}

	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{Email: email, PasswordHash: hash}
	if err := s.repo.Create(user); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) GetUserByID(id int) (*models.User, error) {
	return s.repo.GetByID(id)
}

func (s *userService) GetUserByEmail(email string) (*models.User, error) {
	return s.repo.GetByEmail(strings.TrimSpace(strings.ToLower(email)))
}

func (s *userService) UpdateRefresh(userID int, token string, expiresAt time.Time) error {
	return s.repo.UpdateRefresh(userID, token, expiresAt)
}

func (s *userService) GetByRefreshToken(token string) (*models.User, error) {
	return s.repo.GetByRefreshToken(token)
}

func (s *userService) RotateRefresh(oldToken, newToken string, expiresAt time.Time) (*models.User, error) {
	return s.repo.RotateRefresh(oldToken, newToken, expiresAt)
}
