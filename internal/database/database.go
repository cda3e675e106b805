package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound - запрос выполнился, но подходящей строки нет.
	ErrNotFound = errors.New("запись не найдена")
	// ErrDuplicate - нарушено ограничение UNIQUE.
	ErrDuplicate = errors.New("запись уже существует")
)

func init() {
	// драйвер modernc регистрируется как "sqlite", sqlx о нём не знает
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open открывает базу SQLite по пути к файлу и проверяет соединение.
//
// Параметры DSN:
//   - foreign_keys(1): внешние ключи проверяются;
//   - journal_mode(WAL) и busy_timeout(5000): читатели не мешают писателю;
//   - _time_format=sqlite: время пишется в сортируемом текстовом формате.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	// Строка подключения: путь к файлу и прагмы modernc в виде _pragma=имя(значение).
	// synchronous(NORMAL) в режиме WAL не теряет закоммиченные данные при падении процесса.
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_time_format=sqlite", path)

	// sqlx.Open, как и sql.Open, соединение ещё не устанавливает
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка при открытии %s: %w", path, err)
	}

	// Одно соединение: SQLite всё равно сериализует запись, а так каждая
	// мутация строки гарантированно атомарна относительно других.
	db.SetMaxOpenConns(1)
	// Соединение держим открытым между запросами
	db.SetMaxIdleConns(1)
	// и раз в час пересоздаём
	db.SetConnMaxLifetime(time.Hour)

	// Ping открывает файл и применяет прагмы, здесь же всплывут ошибки пути и прав
	if err := db.PingContext(ctx); err != nil {
		db.Close() // соединение не нужно, если база не открылась
		return nil, fmt.Errorf("ошибка при проверке соединения с %s: %w", path, err)
	}
	return db, nil
}

// Migrate применяет встроенные миграции goose. Вывод goose идёт в logger.
func Migrate(ctx context.Context, db *sqlx.DB, logger logrus.FieldLogger) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{logger})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("ошибка выбора диалекта goose: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}
	return nil
}

// gooseLogger переводит Fatalf goose в обычную ошибку лога: решать о завершении
// процесса должен main, а не библиотека миграций.
type gooseLogger struct {
	l logrus.FieldLogger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Infof("goose: "+strings.TrimSuffix(format, "\n"), v...)
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Errorf("goose: "+strings.TrimSuffix(format, "\n"), v...)
}

// isUniqueViolation распознаёт нарушение UNIQUE по расширенному коду SQLite,
// с запасным вариантом по тексту ошибки.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
