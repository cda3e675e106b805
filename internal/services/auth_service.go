package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"filehost/internal/auth"
	"filehost/internal/database"
	"filehost/internal/models"

	"github.com/sirupsen/logrus"
)

// UserStore - то, что AuthService нужно от хранилища пользователей.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash string, createdAt time.Time) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// AuthService регистрирует пользователей и проверяет их пароли.
// Сессиями занимается HTTP-слой.
type AuthService struct {
	users UserStore
	log   logrus.FieldLogger
	now   func() time.Time

	// dummyHash сравнивается с паролем, когда пользователя нет, чтобы время
	// ответа не выдавало существование имени.
	dummyHash string
}

func NewAuthService(users UserStore, logger logrus.FieldLogger) (*AuthService, error) {
	dummy, err := auth.HashPassword("filehost-dummy-password")
	if err != nil {
		return nil, err
	}
	return &AuthService{
		users:     users,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
		dummyHash: dummy,
	}, nil
}

// Register создаёт пользователя. Сессию не открывает.
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = auth.NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, newError(ErrValidation, "Username and password are required.")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, username, hash, s.now())
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, newError(ErrConflict, "Username already exists.")
		}
		return nil, fmt.Errorf("ошибка создания пользователя %s: %w", username, err)
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("Создан пользователь")
	return user, nil
}

// Login проверяет имя и пароль. Ответ одинаков для неизвестного имени
// и неверного пароля.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = auth.NormalizeUsername(username)
	invalid := newError(ErrAuth, "Invalid credentials.")

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("ошибка получения пользователя %s из БД: %w", username, err)
		}
		auth.CheckPasswordHash(password, s.dummyHash)
		s.log.WithField("username", username).Info("Неудачная попытка входа")
		return nil, invalid
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		s.log.WithField("username", username).Info("Неудачная попытка входа")
		return nil, invalid
	}
	return user, nil
}
