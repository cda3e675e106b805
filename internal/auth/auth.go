package auth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword возвращает bcrypt-хеш пароля. Соль встроена в сам хеш.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("ошибка хэширования пароля: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash сравнивает пароль с хешем из БД средствами bcrypt.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NormalizeUsername обрезает пробелы и приводит имя к нижнему регистру.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
