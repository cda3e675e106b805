package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"filehost/internal/config"
	"filehost/internal/database"
	"filehost/internal/handlers"
	"filehost/internal/logging"
	"filehost/internal/services"
	"filehost/internal/storage"
	"filehost/web"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "КРИТИЧЕСКАЯ ОШИБКА: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// --- 1. Конфигурация ---
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, LogFile: cfg.LogFile})
	if err != nil {
		return err
	}
	if len(cfg.DefaultedKeys) > 0 {
		logger.WithField("keys", strings.Join(cfg.DefaultedKeys, ",")).Info("Для части настроек используются значения по умолчанию")
	}
	if cfg.SecretKey == config.DefaultSecretKey {
		logger.Warn("SECRET_KEY не задан, используется небезопасный ключ разработки")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Хранилища ---
	if err := ensureDir(logger, filepath.Dir(cfg.DBPath)); err != nil {
		return err
	}
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("Ошибка закрытия базы данных")
		}
	}()
	if err := database.Migrate(ctx, db, logger); err != nil {
		return err
	}

	store, err := storage.New(cfg.UploadDir)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"db": cfg.DBPath, "uploads": store.Root}).Info("Хранилища готовы")

	// --- 3. Сервисы и маршруты ---
	authSvc, err := services.NewAuthService(database.NewUserRepository(db), logger)
	if err != nil {
		return err
	}
	fileSvc := services.NewFileService(database.NewFileRepository(db), store, logger)

	tmpl, err := web.Templates()
	if err != nil {
		return fmt.Errorf("ошибка разбора шаблонов: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.Options{
		SecretKey:        cfg.SecretKey,
		MaxContentLength: cfg.MaxContentLength(),
		CookieSecure:     cfg.CookieSecure,
		SessionMaxAge:    cfg.SessionMaxAge,
	}, handlers.Deps{
		Auth:      authSvc,
		Files:     fileSvc,
		DB:        db,
		Logger:    logger,
		Templates: tmpl,
	})

	// --- 4. Запуск сервера ---
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("Сервер запускается")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("не удалось запустить сервер: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Получен сигнал остановки, завершаем работу")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки сервера: %w", err)
	}
	logger.Info("Сервер остановлен")
	return nil
}

// ensureDir создаёт папку, если её нет. Существующий путь должен быть директорией.
func ensureDir(logger logrus.FieldLogger, dirPath string) error {
	info, err := os.Stat(dirPath)
	if os.IsNotExist(err) {
		logger.WithField("path", dirPath).Info("Папка не найдена, создаем")
		if err := os.MkdirAll(dirPath, 0o755); err != nil {
			return fmt.Errorf("не удалось создать папку %s: %w", dirPath, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("ошибка при проверке папки %s: %w", dirPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("путь %s существует, но не является директорией", dirPath)
	}
	return nil
}
