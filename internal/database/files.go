package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"filehost/internal/models"

	"github.com/jmoiron/sqlx"
)

const fileColumns = `id, user_id, orig_name, stored_name, size_bytes, COALESCE(mime, '') AS mime,
	uploaded_at, share_token, downloads`

// FileRepository - доступ к таблице files.
//
// Все изменения затрагивают ровно одну строку и выполняются одним UPDATE,
// поэтому отдельные транзакции не нужны.
type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create сохраняет запись о файле и заполняет f.ID.
func (r *FileRepository) Create(ctx context.Context, f *models.File) error {
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO files (user_id, orig_name, stored_name, size_bytes, mime, uploaded_at)
		VALUES (:user_id, :orig_name, :stored_name, :size_bytes, :mime, :uploaded_at)`, f)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("stored_name '%s': %w", f.StoredName, ErrDuplicate)
		}
		return fmt.Errorf("ошибка выполнения запроса CreateFile: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("ошибка получения ID записи файла CreateFile: %w", err)
	}
	f.ID = id
	return nil
}

// ListByOwner возвращает файлы пользователя, новые сверху.
func (r *FileRepository) ListByOwner(ctx context.Context, userID int64) ([]models.File, error) {
	files := []models.File{}
	err := r.db.SelectContext(ctx, &files,
		`SELECT `+fileColumns+` FROM files WHERE user_id = ? ORDER BY uploaded_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки файлов пользователя %d: %w", userID, err)
	}
	return files, nil
}

// GetOwned ищет файл с учётом владельца. Чужой и несуществующий файл
// неотличимы: в обоих случаях ErrNotFound.
func (r *FileRepository) GetOwned(ctx context.Context, fileID, userID int64) (*models.File, error) {
	var f models.File
	err := r.db.GetContext(ctx, &f,
		`SELECT `+fileColumns+` FROM files WHERE id = ? AND user_id = ?`, fileID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования файла %d: %w", fileID, err)
	}
	return &f, nil
}

// GetByID ищет файл без проверки владельца. Только для внутренних нужд.
func (r *FileRepository) GetByID(ctx context.Context, fileID int64) (*models.File, error) {
	var f models.File
	err := r.db.GetContext(ctx, &f, `SELECT `+fileColumns+` FROM files WHERE id = ?`, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования файла %d: %w", fileID, err)
	}
	return &f, nil
}

// SetShareToken записывает новый токен поверх старого.
func (r *FileRepository) SetShareToken(ctx context.Context, fileID, userID int64, token string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE files SET share_token = ? WHERE id = ? AND user_id = ?`, token, fileID, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("share_token: %w", ErrDuplicate)
		}
		return fmt.Errorf("ошибка выполнения запроса SetShareToken для файла %d: %w", fileID, err)
	}
	return expectOneRow(res, fileID)
}

// ClearShareToken отзывает публичную ссылку.
func (r *FileRepository) ClearShareToken(ctx context.Context, fileID, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE files SET share_token = NULL WHERE id = ? AND user_id = ?`, fileID, userID)
	if err != nil {
		return fmt.Errorf("ошибка выполнения запроса ClearShareToken для файла %d: %w", fileID, err)
	}
	return expectOneRow(res, fileID)
}

// GetShared ищет файл по токену публичной ссылки, ничего не меняя.
// NULL-токен никогда не совпадает.
func (r *FileRepository) GetShared(ctx context.Context, token string) (*models.File, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	var f models.File
	err := r.db.GetContext(ctx, &f, `SELECT `+fileColumns+` FROM files WHERE share_token = ?`, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска файла по токену: %w", err)
	}
	return &f, nil
}

// ClaimShared атомарно увеличивает счётчик скачиваний файла fileID, если
// токен всё ещё актуален, и возвращает обновлённую запись. Если ссылку успели
// отозвать или перевыпустить, счётчик не меняется и возвращается ErrNotFound.
func (r *FileRepository) ClaimShared(ctx context.Context, fileID int64, token string) (*models.File, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	var claimedID int64
	// один UPDATE: проверка токена и инкремент не разделены
	err := r.db.GetContext(ctx, &claimedID,
		`UPDATE files SET downloads = downloads + 1 WHERE id = ? AND share_token = ? RETURNING id`, fileID, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка выполнения запроса ClaimShared для файла %d: %w", fileID, err)
	}

	// имя на диске и владелец не меняются, поэтому повторное чтение по id безопасно
	return r.GetByID(ctx, claimedID)
}

func expectOneRow(res sql.Result, fileID int64) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения rowsAffected для файла %d: %w", fileID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
