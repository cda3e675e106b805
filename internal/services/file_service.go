package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"filehost/internal/database"
	"filehost/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

// maxNameAttempts - сколько раз пробуем новое имя/токен при коллизии.
const maxNameAttempts = 3

// ErrBlobMissing - запись о файле есть, а содержимого на диске нет.
var ErrBlobMissing = errors.New("файл отсутствует на диске")

// FileStore - то, что FileService нужно от таблицы files.
type FileStore interface {
	Create(ctx context.Context, f *models.File) error
	ListByOwner(ctx context.Context, userID int64) ([]models.File, error)
	GetOwned(ctx context.Context, fileID, userID int64) (*models.File, error)
	SetShareToken(ctx context.Context, fileID, userID int64, token string) error
	ClearShareToken(ctx context.Context, fileID, userID int64) error
	GetShared(ctx context.Context, token string) (*models.File, error)
	ClaimShared(ctx context.Context, fileID int64, token string) (*models.File, error)
}

// BlobStore - файловое хранилище (см. storage.Store).
type BlobStore interface {
	Create(userID int64, storedName string, src io.Reader) (int64, error)
	Path(userID int64, storedName string) (string, error)
	Stat(userID int64, storedName string) (os.FileInfo, error)
}

// Blob - найденный файл и путь к его содержимому на диске.
type Blob struct {
	File *models.File
	Path string
}

// FileService - загрузка, список, скачивание и публичные ссылки.
type FileService struct {
	files FileStore
	blobs BlobStore
	log   logrus.FieldLogger

	now           func() time.Time
	newStoredName func(ext string) string
	newToken      func() (string, error)
}

func NewFileService(files FileStore, blobs BlobStore, logger logrus.FieldLogger) *FileService {
	return &FileService{
		files:         files,
		blobs:         blobs,
		log:           logger,
		now:           func() time.Time { return time.Now().UTC() },
		newStoredName: NewStoredName,
		newToken:      NewShareToken,
	}
}

// Upload сохраняет src в папку пользователя и создаёт запись о файле.
// size_bytes - реально записанные байты, mime - со слов клиента.
//
// Если запись в БД не удалась, файл на диске остаётся: диск и БД не связаны
// транзакцией.
func (s *FileService) Upload(ctx context.Context, userID int64, src io.Reader, filename, mime string) (*models.File, error) {
	// --- 1. Проверка входных данных ---
	if src == nil {
		return nil, newError(ErrValidation, "No file part.")
	}
	if filename == "" {
		return nil, newError(ErrValidation, "No selected file.")
	}
	// Расширение проверяется по белому списку, без учёта регистра
	if !AllowedFile(filename) {
		return nil, newError(ErrValidation, "File type not allowed.")
	}

	// --- 2. Имена: безопасное для показа и непрозрачное для диска ---
	ext := Extension(filename)
	originalName := SecureFilename(filename)
	if originalName == "" {
		// от имени после очистки могло ничего не остаться (например, только кириллица)
		originalName = "upload." + ext
	}

	// --- 3. Запись содержимого на диск ---
	// size - реально записанные байты, а не заявленные клиентом
	storedName, size, err := s.writeBlob(userID, ext, src)
	if err != nil {
		return nil, err
	}

	// Клиент не прислал осмысленный MIME: определяем по содержимому
	if mime == "" || mime == "application/octet-stream" {
		mime = s.detectMime(userID, storedName, mime)
	}

	// --- 4. Запись в БД ---
	file := &models.File{
		UserID:       userID,
		OriginalName: originalName,
		StoredName:   storedName,
		SizeBytes:    size,
		Mime:         mime,
		UploadedAt:   s.now(),
	}
	if err := s.files.Create(ctx, file); err != nil {
		s.log.WithFields(logrus.Fields{"user_id": userID, "stored_name": storedName}).
			Warn("Запись в БД не создана, файл на диске остался без записи")
		return nil, fmt.Errorf("не удалось сохранить запись о файле: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id": userID, "file_id": file.ID, "orig_name": originalName, "size": size,
	}).Info("Файл загружен")
	return file, nil
}

func (s *FileService) writeBlob(userID int64, ext string, src io.Reader) (string, int64, error) {
	for attempt := 1; ; attempt++ {
		storedName := s.newStoredName(ext)
		size, err := s.blobs.Create(userID, storedName, src)
		if err == nil {
			return storedName, size, nil
		}

		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", 0, newError(ErrPayloadTooLarge, "File too large.")
		}
		// коллизия имени возможна только до чтения src, поэтому повтор безопасен
		if errors.Is(err, os.ErrExist) && attempt < maxNameAttempts {
			continue
		}
		return "", 0, err
	}
}

func (s *FileService) detectMime(userID int64, storedName, fallback string) string {
	path, err := s.blobs.Path(userID, storedName)
	if err != nil {
		return fallback
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		s.log.WithError(err).WithField("stored_name", storedName).Warn("Не удалось определить MIME-тип")
		return fallback
	}
	return detected.String()
}

// ListOwned возвращает файлы пользователя, новые сверху.
func (s *FileService) ListOwned(ctx context.Context, userID int64) ([]models.File, error) {
	return s.files.ListByOwner(ctx, userID)
}

// Download находит файл владельца. Счётчик скачиваний не меняется.
func (s *FileService) Download(ctx context.Context, userID, fileID int64) (*Blob, error) {
	file, err := s.files.GetOwned(ctx, fileID, userID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return s.blob(file)
}

// Share выпускает новый токен, старый сразу перестаёт работать.
func (s *FileService) Share(ctx context.Context, userID, fileID int64) (string, error) {
	for attempt := 1; ; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return "", err
		}

		err = s.files.SetShareToken(ctx, fileID, userID, token)
		if err == nil {
			s.log.WithFields(logrus.Fields{"user_id": userID, "file_id": fileID}).Info("Создана публичная ссылка")
			return token, nil
		}
		if errors.Is(err, database.ErrDuplicate) && attempt < maxNameAttempts {
			continue
		}
		return "", mapNotFound(err)
	}
}

// Unshare отзывает публичную ссылку.
func (s *FileService) Unshare(ctx context.Context, userID, fileID int64) error {
	if err := s.files.ClearShareToken(ctx, fileID, userID); err != nil {
		return mapNotFound(err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "file_id": fileID}).Info("Публичная ссылка удалена")
	return nil
}

// PublicFetch находит файл по токену и атомарно увеличивает счётчик скачиваний.
// Счётчик меняется только если файл будет отдан: при неизвестном токене
// или отсутствии файла на диске он остаётся прежним.
func (s *FileService) PublicFetch(ctx context.Context, token string) (*Blob, error) {
	// 1. Ищем запись по токену, пока ничего не меняя
	file, err := s.files.GetShared(ctx, token)
	if err != nil {
		return nil, mapNotFound(err)
	}

	// 2. Убеждаемся, что содержимое есть на диске
	blob, err := s.blob(file)
	if err != nil {
		return nil, err
	}

	// 3. Засчитываем скачивание. Если ссылку успели отозвать, будет ErrNotFound
	claimed, err := s.files.ClaimShared(ctx, file.ID, token)
	if err != nil {
		return nil, mapNotFound(err)
	}
	blob.File = claimed
	return blob, nil
}

// blob проверяет, что содержимое файла лежит на диске, и возвращает путь к нему.
func (s *FileService) blob(file *models.File) (*Blob, error) {
	path, err := s.blobs.Path(file.UserID, file.StoredName)
	if err != nil {
		return nil, fmt.Errorf("некорректное имя файла %d на диске: %w", file.ID, err)
	}
	if _, err := s.blobs.Stat(file.UserID, file.StoredName); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"file_id": file.ID, "path": path}).
			Error("Запись о файле есть, а на диске файла нет")
		return nil, fmt.Errorf("файл %d: %w: %w", file.ID, ErrBlobMissing, err)
	}
	return &Blob{File: file, Path: path}, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return newError(ErrNotFound, "File not found.")
	}
	return err
}
