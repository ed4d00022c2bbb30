package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Drivers de storage soportados.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBlob     = "blob"
)

// Backends del blob ledger.
const (
	BlobRedis  = "redis"
	BlobFS     = "fs"
	BlobMemory = "memory"
)

// Config es la configuración completa del servicio.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Parser    ParserConfig    `yaml:"parser"`
	Verifier  VerifierConfig  `yaml:"verifier"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Storage   StorageConfig   `yaml:"storage"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
}

// TelegramConfig controla el long-poll de la Bot API.
type TelegramConfig struct {
	Token              string   `yaml:"-"` // sólo desde TELEGRAM_BOT_TOKEN
	APIBase            string   `yaml:"api_base"`
	PollTimeoutSeconds int      `yaml:"poll_timeout_seconds"`
	RatePerSec         float64  `yaml:"rate_per_sec"`
	Chats              []string `yaml:"chats"` // "@bot", "channel" o chat id; vacío = todos
}

// ParserConfig fija coin y número para el formato de bot.
type ParserConfig struct {
	DefaultCoin   string `yaml:"default_coin"`
	DefaultNumber string `yaml:"default_number"`
}

// VerifierConfig controla la fuente de aleatoriedad. Seed 0 = semilla aleatoria.
type VerifierConfig struct {
	Seed uint64 `yaml:"seed"`
}

// IngestConfig controla los reintentos del commit.
type IngestConfig struct {
	CommitAttempts  int     `yaml:"commit_attempts"`
	CommitBackoffMs int     `yaml:"commit_backoff_ms"`
	HighConfidence  float64 `yaml:"high_confidence"`
}

// StorageConfig elige el ledger.
type StorageConfig struct {
	Driver  string        `yaml:"driver"` // sqlite | postgres | blob
	Path    string        `yaml:"path"`   // archivo SQLite, o ":memory:"
	DSN     string        `yaml:"-"`      // Postgres, sólo desde STORAGE_DSN
	Blob    BlobConfig    `yaml:"blob"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// BlobConfig configura el object storage del blob ledger.
type BlobConfig struct {
	Backend       string `yaml:"backend"` // redis | fs | memory
	Dir           string `yaml:"dir"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
}

// BreakerConfig controla el circuit breaker delante del blob store.
type BreakerConfig struct {
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
	OpenTimeoutSeconds  int    `yaml:"open_timeout_seconds"`
}

// DashboardConfig controla el refresco y las ventanas del dashboard.
type DashboardConfig struct {
	RefreshSeconds int  `yaml:"refresh_seconds"`
	TrendWindow    int  `yaml:"trend_window"`
	RollingWindow  int  `yaml:"rolling_window"`
	RecentLimit    int  `yaml:"recent_limit"`
	Console        bool `yaml:"console"`
}

// HTTPConfig controla la API. Addr vacío la desactiva.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben al YAML. Un path vacío usa sólo env y defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate comprueba las combinaciones que no tienen default posible.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage driver postgres requires STORAGE_DSN")
		}
	case DriverBlob:
		switch c.Storage.Blob.Backend {
		case BlobRedis, BlobFS, BlobMemory:
		default:
			return fmt.Errorf("unknown blob backend %q", c.Storage.Blob.Backend)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Ingest.HighConfidence > 100 {
		return fmt.Errorf("high_confidence must be within [0,100], got %v", c.Ingest.HighConfidence)
	}
	return nil
}

// PollTimeout devuelve el timeout del long-poll como time.Duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Telegram.PollTimeoutSeconds) * time.Second
}

// RefreshInterval devuelve cada cuánto se redibuja el dashboard.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Dashboard.RefreshSeconds) * time.Second
}

// CommitBackoff devuelve la espera entre reintentos de commit.
func (c *Config) CommitBackoff() time.Duration {
	return time.Duration(c.Ingest.CommitBackoffMs) * time.Millisecond
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("BOT_LIST"); v != "" {
		cfg.Telegram.Chats = splitList(v)
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.Blob.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Storage.Blob.RedisPassword = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("REFRESH_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REFRESH_SECONDS: %w", err)
		}
		cfg.Dashboard.RefreshSeconds = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

// splitList separa "a, b,c" en ["a" "b" "c"], ignorando vacíos.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Telegram.PollTimeoutSeconds <= 0 {
		cfg.Telegram.PollTimeoutSeconds = 30
	}
	if cfg.Telegram.RatePerSec <= 0 {
		cfg.Telegram.RatePerSec = 1
	}
	if cfg.Parser.DefaultCoin == "" {
		cfg.Parser.DefaultCoin = "ETH"
	}
	if cfg.Parser.DefaultNumber == "" {
		cfg.Parser.DefaultNumber = "1"
	}
	if cfg.Ingest.CommitAttempts <= 0 {
		cfg.Ingest.CommitAttempts = 5
	}
	if cfg.Ingest.CommitBackoffMs <= 0 {
		cfg.Ingest.CommitBackoffMs = 2000
	}
	if cfg.Ingest.HighConfidence <= 0 {
		cfg.Ingest.HighConfidence = 75
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "signalbot.db"
	}
	if cfg.Storage.Blob.Backend == "" {
		cfg.Storage.Blob.Backend = BlobFS
	}
	if cfg.Storage.Blob.Dir == "" {
		cfg.Storage.Blob.Dir = "data"
	}
	if cfg.Storage.Blob.RedisAddr == "" {
		cfg.Storage.Blob.RedisAddr = "localhost:6379"
	}
	if cfg.Storage.Breaker.ConsecutiveFailures == 0 {
		cfg.Storage.Breaker.ConsecutiveFailures = 5
	}
	if cfg.Storage.Breaker.OpenTimeoutSeconds <= 0 {
		cfg.Storage.Breaker.OpenTimeoutSeconds = 30
	}
	if cfg.Dashboard.RefreshSeconds <= 0 {
		cfg.Dashboard.RefreshSeconds = 10
	}
	if cfg.Dashboard.TrendWindow <= 0 {
		cfg.Dashboard.TrendWindow = 5
	}
	if cfg.Dashboard.RollingWindow <= 0 {
		cfg.Dashboard.RollingWindow = 20
	}
	if cfg.Dashboard.RecentLimit <= 0 {
		cfg.Dashboard.RecentLimit = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
