package models

import (
	"database/sql"
	"time"
)

// User представляет пользователя в системе (таблица users).
// После регистрации запись не меняется и не удаляется.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"` // всегда в нижнем регистре
	PasswordHash string    `db:"password_hash" json:"-"`   // bcrypt-хеш, наружу не отдаётся
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// File представляет запись о загруженном файле (таблица files).
type File struct {
	ID           int64          `db:"id" json:"id"`
	UserID       int64          `db:"user_id" json:"user_id"`         // владелец, не меняется
	OriginalName string         `db:"orig_name" json:"original_name"` // очищенное имя от клиента
	StoredName   string         `db:"stored_name" json:"-"`           // имя файла на диске, глобально уникальное
	SizeBytes    int64          `db:"size_bytes" json:"size_bytes"`   // реально записанные байты
	Mime         string         `db:"mime" json:"mime"`               // справочно, со слов клиента
	UploadedAt   time.Time      `db:"uploaded_at" json:"uploaded_at"`
	ShareToken   sql.NullString `db:"share_token" json:"-"`
	Downloads    int64          `db:"downloads" json:"downloads"` // только анонимные скачивания
}

// IsShared сообщает, есть ли у файла действующая публичная ссылка.
func (f File) IsShared() bool {
	return f.ShareToken.Valid && f.ShareToken.String != ""
}

// SharePath возвращает относительный путь публичной ссылки или пустую строку.
func (f File) SharePath() string {
	if !f.IsShared() {
		return ""
	}
	return "/s/" + f.ShareToken.String
}
