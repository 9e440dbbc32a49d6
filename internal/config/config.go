package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Границы настроек участков
const (
	MinSpacing  = 32
	MinDefaultY = 1
	MaxDefaultY = 255
)

// ErrInvalid — конфигурация не проходит проверку
var ErrInvalid = errors.New("invalid configuration")

// Config корневая структура конфигурации приложения.
type Config struct {
	Plots     PlotsConfig     `yaml:"plots"`
	Storage   StorageConfig   `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
}

// PlotsConfig — размещение участков и шаблоны
type PlotsConfig struct {
	World        string `yaml:"world"`         // идентификатор мира (ключ состояния)
	Spacing      int    `yaml:"spacing"`       // шаг решётки в блоках, не меньше 32
	DefaultY     int    `yaml:"default_y"`     // высота основания участков, 1–255
	Template     string `yaml:"template"`      // файл шаблона участка
	Lobby        string `yaml:"lobby"`         // файл шаблона лобби; пусто — шаблон участка
	TemplatesDir string `yaml:"templates_dir"` // каталог шаблонов; пусто — только встроенные
	BlocksDir    string `yaml:"blocks_dir"`    // каталог дополнительных типов блоков (*.json)
}

// StorageConfig — хранилище состояния реестра и мира
type StorageConfig struct {
	Backend      string      `yaml:"backend"` // memory | badger | redis | mysql | sqlite | mongo
	DataDir      string      `yaml:"data_dir"`
	DSN          string      `yaml:"dsn"`
	SaveInterval int         `yaml:"save_interval_seconds"` // автосохранение мира
	Redis        RedisConfig `yaml:"redis"`
	Mongo        MongoConfig `yaml:"mongo"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// EventBusConfig — шина событий; пустой URL означает in-memory шину
type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Capacity  int    `yaml:"capacity"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	RESTPort int    `yaml:"rest_port"`
}

// AuthConfig — операторы REST API
type AuthConfig struct {
	JWTSecret string           `yaml:"jwt_secret"` // base64, не короче 32 байт
	TokenTTL  int              `yaml:"token_ttl_minutes"`
	Operators []OperatorConfig `yaml:"operators"`
}

type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
	Admin        bool   `yaml:"admin"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"` // OTLP/HTTP, host:port
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	FileLevel string `yaml:"file_level"`
	Dir       string `yaml:"dir"`
}

// WebhooksConfig — входящие уведомления игрового сервера и исходящие подписки на события
type WebhooksConfig struct {
	InboundSecret string          `yaml:"inbound_secret"` // HMAC-SHA256 ключ для X-Webhook-Signature; пусто — без проверки
	Targets       []WebhookTarget `yaml:"targets"`
}

type WebhookTarget struct {
	Name       string   `yaml:"name"`
	URL        string   `yaml:"url"`
	Secret     string   `yaml:"secret"`
	Events     []string `yaml:"events"` // типы событий; "*" — все
	Timeout    int      `yaml:"timeout_seconds"`
	RetryCount int      `yaml:"retry_count"`
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getIntWithEnvFallback(s.RESTPort, "PLOTS_REST_PORT", 8088)
}

// Addr возвращает адрес прослушивания REST API
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GetRESTPort())
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configValue int, envVar string, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}

// getStringWithEnvFallback — то же для строк
func getStringWithEnvFallback(configValue, envVar, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultValue
}

// ApplyDefaults заполняет незаданные поля из окружения и значений по умолчанию
func (c *Config) ApplyDefaults() {
	c.Plots.World = getStringWithEnvFallback(c.Plots.World, "PLOTS_WORLD", "overworld")
	c.Plots.Spacing = getIntWithEnvFallback(c.Plots.Spacing, "PLOTS_SPACING", 1000)
	c.Plots.DefaultY = getIntWithEnvFallback(c.Plots.DefaultY, "PLOTS_DEFAULT_Y", 80)
	c.Plots.Template = getStringWithEnvFallback(c.Plots.Template, "PLOTS_TEMPLATE", "default.yaml")
	c.Plots.Lobby = getStringWithEnvFallback(c.Plots.Lobby, "PLOTS_LOBBY", "")
	c.Plots.TemplatesDir = getStringWithEnvFallback(c.Plots.TemplatesDir, "PLOTS_TEMPLATES_DIR", "")
	c.Plots.BlocksDir = getStringWithEnvFallback(c.Plots.BlocksDir, "PLOTS_BLOCKS_DIR", "")

	c.Storage.Backend = getStringWithEnvFallback(c.Storage.Backend, "PLOTS_STORAGE", "badger")
	c.Storage.DataDir = getStringWithEnvFallback(c.Storage.DataDir, "PLOTS_DATA_DIR", "data")
	c.Storage.DSN = getStringWithEnvFallback(c.Storage.DSN, "PLOTS_DSN", "")
	c.Storage.SaveInterval = getIntWithEnvFallback(c.Storage.SaveInterval, "PLOTS_SAVE_INTERVAL", 300)
	c.Storage.Redis.Addr = getStringWithEnvFallback(c.Storage.Redis.Addr, "PLOTS_REDIS_ADDR", "localhost:6379")
	c.Storage.Mongo.URI = getStringWithEnvFallback(c.Storage.Mongo.URI, "PLOTS_MONGO_URI", "mongodb://localhost:27017")

	c.EventBus.URL = getStringWithEnvFallback(c.EventBus.URL, "PLOTS_NATS_URL", "")
	c.EventBus.Stream = getStringWithEnvFallback(c.EventBus.Stream, "PLOTS_NATS_STREAM", "SKYPLOTS")
	c.EventBus.Retention = getIntWithEnvFallback(c.EventBus.Retention, "PLOTS_NATS_RETENTION_HOURS", 72)
	c.EventBus.Capacity = getIntWithEnvFallback(c.EventBus.Capacity, "PLOTS_EVENTBUS_CAPACITY", 1024)

	c.Auth.JWTSecret = getStringWithEnvFallback(c.Auth.JWTSecret, "PLOTS_JWT_SECRET", "")
	c.Auth.TokenTTL = getIntWithEnvFallback(c.Auth.TokenTTL, "PLOTS_TOKEN_TTL_MINUTES", 24*60)

	c.Telemetry.Endpoint = getStringWithEnvFallback(c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	c.Telemetry.ServiceName = getStringWithEnvFallback(c.Telemetry.ServiceName, "OTEL_SERVICE_NAME", "skyplots")
	if c.Telemetry.SampleRatio <= 0 {
		c.Telemetry.SampleRatio = 1
	}

	c.Logging.Level = getStringWithEnvFallback(c.Logging.Level, "PLOTS_LOG_LEVEL", "INFO")
	c.Logging.FileLevel = getStringWithEnvFallback(c.Logging.FileLevel, "PLOTS_LOG_FILE_LEVEL", "DEBUG")
	c.Logging.Dir = getStringWithEnvFallback(c.Logging.Dir, "PLOTS_LOG_DIR", "logs")

	c.Webhooks.InboundSecret = getStringWithEnvFallback(c.Webhooks.InboundSecret, "PLOTS_WEBHOOK_SECRET", "")
}

// Validate проверяет границы настроек
func (c *Config) Validate() error {
	if c.Plots.Spacing < MinSpacing {
		return fmt.Errorf("%w: plots.spacing %d is less than %d", ErrInvalid, c.Plots.Spacing, MinSpacing)
	}
	if c.Plots.DefaultY < MinDefaultY || c.Plots.DefaultY > MaxDefaultY {
		return fmt.Errorf("%w: plots.default_y %d must be within %d..%d", ErrInvalid, c.Plots.DefaultY, MinDefaultY, MaxDefaultY)
	}
	if c.Plots.Template == "" {
		return fmt.Errorf("%w: plots.template is empty", ErrInvalid)
	}
	if c.Plots.World == "" || len(c.Plots.World) > 64 {
		return fmt.Errorf("%w: plots.world %q", ErrInvalid, c.Plots.World)
	}
	switch c.Storage.Backend {
	case "memory", "badger", "redis", "mysql", "sqlite", "mongo":
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", ErrInvalid, c.Storage.Backend)
	}
	if c.Storage.Backend == "mysql" && c.Storage.DSN == "" {
		return fmt.Errorf("%w: storage.dsn is required for mysql", ErrInvalid)
	}
	for i, op := range c.Auth.Operators {
		if op.Username == "" || op.PasswordHash == "" {
			return fmt.Errorf("%w: auth.operators[%d] needs username and password_hash", ErrInvalid, i)
		}
	}
	for i, wh := range c.Webhooks.Targets {
		if wh.URL == "" || len(wh.Events) == 0 {
			return fmt.Errorf("%w: webhooks.targets[%d] needs url and events", ErrInvalid, i)
		}
	}
	return nil
}

// Default возвращает конфигурацию без файла: значения из окружения и по умолчанию
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV PLOTS_CONFIG, иначе возвращает Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PLOTS_CONFIG")
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
