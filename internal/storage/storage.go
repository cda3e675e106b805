// Package storage хранит загруженные файлы на диске: по папке на пользователя,
// файлы внутри названы непрозрачным stored_name.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalidName - имя файла пытается выйти за пределы папки пользователя.
var ErrInvalidName = errors.New("недопустимое имя файла в хранилище")

// Store - файловое хранилище с корнем Root.
type Store struct {
	Root string
}

// New проверяет корень хранилища и создаёт его при необходимости.
func New(root string) (*Store, error) {
	if root == "" || root == "/" || root == "." {
		return nil, fmt.Errorf("небезопасный путь для хранилища: %q", root)
	}
	info, err := os.Stat(root)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("не удалось создать папку %s: %w", root, err)
		}
		return &Store{Root: root}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка при проверке папки %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("путь %s существует, но не является директорией", root)
	}
	return &Store{Root: root}, nil
}

// UserDir возвращает папку пользователя, создавая её при необходимости.
// MkdirAll идемпотентен, поэтому параллельные загрузки не мешают друг другу.
func (s *Store) UserDir(userID int64) (string, error) {
	dir := filepath.Join(s.Root, strconv.FormatInt(userID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("не удалось создать папку пользователя %s: %w", dir, err)
	}
	return dir, nil
}

// Path возвращает путь к файлу пользователя. Файл может не существовать.
func (s *Store) Path(userID int64, storedName string) (string, error) {
	if err := checkName(storedName); err != nil {
		return "", err
	}
	return filepath.Join(s.Root, strconv.FormatInt(userID, 10), storedName), nil
}

// Create записывает src в новый файл и возвращает число реально записанных байт.
// Существующий файл не перезаписывается. Если чтение src оборвалось,
// недописанный файл удаляется.
func (s *Store) Create(userID int64, storedName string, src io.Reader) (int64, error) {
	if err := checkName(storedName); err != nil {
		return 0, err
	}
	dir, err := s.UserDir(userID)
	if err != nil {
		return 0, err
	}
	path := filepath.Join(dir, storedName)

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("не удалось создать файл на сервере (%s): %w", path, err)
	}

	written, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return 0, fmt.Errorf("не удалось записать файл %s: %w", path, copyErr)
		}
		return 0, fmt.Errorf("не удалось закрыть файл %s: %w", path, closeErr)
	}
	return written, nil
}

// Stat возвращает информацию о файле пользователя. Отсутствие файла -
// ошибка, для которой errors.Is(err, os.ErrNotExist).
func (s *Store) Stat(userID int64, storedName string) (os.FileInfo, error) {
	path, err := s.Path(userID, storedName)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

func checkName(storedName string) error {
	if storedName == "" || storedName == "." || storedName == ".." ||
		strings.ContainsAny(storedName, `/\`) || filepath.Base(storedName) != storedName {
		return fmt.Errorf("%w: %q", ErrInvalidName, storedName)
	}
	return nil
}
