package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filehost/internal/models"

	"github.com/jmoiron/sqlx"
)

// UserRepository - доступ к таблице users.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create добавляет пользователя. При занятом имени возвращает ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, username, passwordHash string, createdAt time.Time) (*models.User, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("пользователь '%s': %w", username, ErrDuplicate)
		}
		return nil, fmt.Errorf("ошибка при выполнении запроса CreateUser: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении ID пользователя CreateUser: %w", err)
	}

	return &models.User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
	}, nil
}

// GetByUsername ищет пользователя по уже нормализованному имени.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования результата GetUserByUsername для %s: %w", username, err)
	}
	return &user, nil
}
