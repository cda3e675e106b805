package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options - настройки логгера.
type Options struct {
	Level   string // уровень logrus (debug, info, warn, error)
	LogFile string // если задан, логи пишутся ещё и в файл с ротацией
}

// New создаёт logrus-логгер. Вывод всегда идёт в stdout, при заданном LogFile
// дублируется в файл, который ротирует lumberjack.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("неизвестный уровень логирования %q: %w", opts.Level, err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	if opts.LogFile == "" {
		logger.SetOutput(os.Stdout)
		return logger, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать папку для логов %s: %w", filepath.Dir(opts.LogFile), err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   opts.LogFile,
		MaxSize:    100, // МБ
		MaxBackups: 3,
		MaxAge:     28, // дней
		Compress:   true,
		LocalTime:  true,
	}))
	return logger, nil
}

// Discard возвращает логгер, который ничего не пишет. Нужен в тестах.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
