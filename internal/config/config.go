package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// DefaultSecretKey используется, только если SECRET_KEY не задан. Для продакшена не годится.
const DefaultSecretKey = "dev-secret-change-me"

// Config - настройки приложения, собранные из окружения и (опционально) файла.
type Config struct {
	SecretKey          string `mapstructure:"SECRET_KEY"`
	MaxContentLengthMB int64  `mapstructure:"MAX_CONTENT_LENGTH_MB"`
	Host               string `mapstructure:"HOST"`
	Port               int    `mapstructure:"PORT"`
	DBPath             string `mapstructure:"DB_PATH"`
	UploadDir          string `mapstructure:"UPLOAD_DIR"`
	CookieSecure       bool   `mapstructure:"COOKIE_SECURE"`
	SessionMaxAge      int    `mapstructure:"SESSION_MAX_AGE"`
	LogLevel           string `mapstructure:"LOG_LEVEL"`
	LogFile            string `mapstructure:"LOG_FILE"`

	// DefaultedKeys - ключи, для которых взято значение по умолчанию (для предупреждений в логе).
	DefaultedKeys []string `mapstructure:"-"`
}

var lookupEnv = os.LookupEnv

var defaults = map[string]any{
	"SECRET_KEY":            DefaultSecretKey,
	"MAX_CONTENT_LENGTH_MB": 20,
	"HOST":                  "127.0.0.1",
	"PORT":                  5000,
	"DB_PATH":               "./data/app.db",
	"UPLOAD_DIR":            "./uploads",
	"COOKIE_SECURE":         false,
	"SESSION_MAX_AGE":       86400 * 7,
	"LOG_LEVEL":             "info",
	"LOG_FILE":              "",
}

// Load читает конфигурацию из переменных окружения.
// Если задан CONFIG_FILE, значения из файла читаются первыми, окружение их перекрывает.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
		// AutomaticEnv не участвует в Unmarshal без явной привязки
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("ошибка привязки переменной %s: %w", key, err)
		}
	}
	v.AutomaticEnv()

	if err := v.BindEnv("CONFIG_FILE"); err != nil {
		return nil, fmt.Errorf("ошибка привязки переменной CONFIG_FILE: %w", err)
	}
	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}

	for key := range defaults {
		if !isExplicit(v, key) {
			cfg.DefaultedKeys = append(cfg.DefaultedKeys, key)
		}
	}

	sort.Strings(cfg.DefaultedKeys)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// isExplicit отличает значение из окружения/файла от SetDefault: у viper IsSet
// возвращает true и для дефолтов.
func isExplicit(v *viper.Viper, key string) bool {
	if v.InConfig(key) {
		return true
	}
	_, ok := lookupEnv(key)
	return ok
}

// Validate проверяет значения, которые нельзя исправить молча.
func (c *Config) Validate() error {
	if c.MaxContentLengthMB <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH_MB должен быть больше нуля, получено %d", c.MaxContentLengthMB)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("некорректный PORT: %d", c.Port)
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("SECRET_KEY не может быть пустым")
	}
	if strings.TrimSpace(c.DBPath) == "" || strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("DB_PATH и UPLOAD_DIR не могут быть пустыми")
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE должен быть больше нуля, получено %d", c.SessionMaxAge)
	}
	return nil
}

// MaxContentLength возвращает потолок размера тела запроса в байтах.
func (c *Config) MaxContentLength() int64 {
	return c.MaxContentLengthMB << 20
}

// Addr возвращает адрес для net.Listen.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
