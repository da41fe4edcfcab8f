package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию движка интерактивных историй.
type Config struct {
	// Настройки сервера
	Port     string `envconfig:"SERVER_PORT" default:"8084"`
	Env      string `envconfig:"APP_ENV" default:"production"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Хранилище: postgres (боевое) или memory (локальная разработка, тесты)
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"postgres"`

	// Настройки PostgreSQL
	DBHost        string        `envconfig:"DB_HOST"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER"`
	DBPassword    string        `envconfig:"DB_PASSWORD"`
	DBName        string        `envconfig:"DB_NAME"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`

	// Настройки Redis (кэш графов историй; пустой адрес отключает кэш)
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	GraphCacheTTL time.Duration `envconfig:"GRAPH_CACHE_TTL" default:"10m"`

	// Настройки RabbitMQ (пустой URL отключает публикацию обновлений)
	RabbitMQURL            string `envconfig:"RABBITMQ_URL"`
	ClientUpdatesQueueName string `envconfig:"CLIENT_UPDATES_QUEUE_NAME" default:"client_updates"`

	// Правила движка
	DefaultChoiceTimeoutSec int    `envconfig:"DEFAULT_CHOICE_TIMEOUT_SECONDS" default:"10"`
	EntryScenePolicy        string `envconfig:"ENTRY_SCENE_POLICY" default:"first-by-order"`
	VisitedLogLimit         int    `envconfig:"VISITED_LOG_LIMIT" default:"1000"`
	CheckpointSlots         int    `envconfig:"CHECKPOINT_SLOTS" default:"5"`

	// CORS
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// GetAllowedOrigins разбирает список разрешенных CORS origin'ов.
func (c *Config) GetAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// DefaultChoiceTimeout возвращает таймаут выбора по умолчанию как Duration.
func (c *Config) DefaultChoiceTimeout() time.Duration {
	return time.Duration(c.DefaultChoiceTimeoutSec) * time.Second
}

// LoadConfig загружает конфигурацию из переменных окружения.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	if cfg.StorageBackend != "postgres" && cfg.StorageBackend != "memory" {
		return nil, fmt.Errorf("неизвестный STORAGE_BACKEND %q (postgres|memory)", cfg.StorageBackend)
	}
	if cfg.StorageBackend == "postgres" && (cfg.DBHost == "" || cfg.DBUser == "" || cfg.DBName == "") {
		return nil, fmt.Errorf("для STORAGE_BACKEND=postgres обязательны DB_HOST, DB_USER и DB_NAME")
	}
	if cfg.DefaultChoiceTimeoutSec <= 0 {
		return nil, fmt.Errorf("DEFAULT_CHOICE_TIMEOUT_SECONDS должен быть положительным")
	}
	if cfg.CheckpointSlots <= 0 {
		return nil, fmt.Errorf("CHECKPOINT_SLOTS должен быть положительным")
	}

	return &cfg, nil
}
