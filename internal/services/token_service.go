package services

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ShareTokenBytes - энтропия публичной ссылки (256 бит).
const ShareTokenBytes = 32

// GenerateSecureToken возвращает length случайных байт из crypto/rand
// в виде URL-safe base64 без паддинга.
func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("не удалось сгенерировать случайные байты: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewShareToken выпускает новый токен публичной ссылки.
func NewShareToken() (string, error) {
	return GenerateSecureToken(ShareTokenBytes)
}

// NewStoredName возвращает имя файла на диске: 32 hex-символа UUIDv4
// и исходное расширение, если оно есть.
func NewStoredName(ext string) string {
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	if ext == "" {
		return name
	}
	return name + "." + ext
}
