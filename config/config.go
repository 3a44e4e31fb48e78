package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del daemon.
type Config struct {
	Market    MarketConfig    `yaml:"market" toml:"market"`
	Price     PriceConfig     `yaml:"price" toml:"price"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Events    EventsConfig    `yaml:"events" toml:"events"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler"`
	Keeper    KeeperConfig    `yaml:"keeper" toml:"keeper"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

// MarketConfig son los parámetros fijados al inicializar el mercado.
type MarketConfig struct {
	PoolID          string `yaml:"pool_id" toml:"pool_id"`
	Owner           string `yaml:"owner" toml:"owner"` // dirección que inicializa y administra
	Self            string `yaml:"self" toml:"self"`   // identidad del propio mercado para las llamadas programadas
	FeeBps          uint32 `yaml:"fee_bps" toml:"fee_bps"`
	MinStake        uint64 `yaml:"min_stake" toml:"min_stake"` // en unidades nativas (9 decimales)
	IntervalSeconds int    `yaml:"interval_seconds" toml:"interval_seconds"`
	BufferSeconds   int    `yaml:"buffer_seconds" toml:"buffer_seconds"`
}

// PriceConfig controla de dónde sale el precio del pool.
type PriceConfig struct {
	BaseURL  string `yaml:"base_url" toml:"base_url"`
	Decimals int32  `yaml:"decimals" toml:"decimals"`
	Fixed    uint64 `yaml:"fixed" toml:"fixed"` // > 0: usa un precio fijo, sin red
}

// StorageConfig controla dónde se persiste el ledger.
type StorageConfig struct {
	Driver string      `yaml:"driver" toml:"driver"` // sqlite | redis | memory
	DSN    string      `yaml:"dsn" toml:"dsn"`       // ruta al archivo SQLite, o ":memory:"
	Redis  RedisConfig `yaml:"redis" toml:"redis"`
}

// RedisConfig se usa cuando driver = redis.
type RedisConfig struct {
	Addr      string `yaml:"addr" toml:"addr"`
	Password  string `yaml:"password" toml:"password"`
	DB        int    `yaml:"db" toml:"db"`
	KeyPrefix string `yaml:"key_prefix" toml:"key_prefix"`
}

// EventsConfig controla a dónde van los eventos del mercado.
type EventsConfig struct {
	Journal     bool   `yaml:"journal" toml:"journal"`           // guarda eventos en SQLite junto al ledger
	PostgresDSN string `yaml:"postgres_dsn" toml:"postgres_dsn"` // journal append-only en Postgres, opcional
}

// SchedulerConfig define el reloj de slots.
type SchedulerConfig struct {
	GenesisUnix  int64  `yaml:"genesis_unix" toml:"genesis_unix"` // instante del slot 0
	SlotCapacity uint64 `yaml:"slot_capacity" toml:"slot_capacity"`
}

// KeeperConfig controla el loop de automatización.
type KeeperConfig struct {
	TickSeconds int    `yaml:"tick_seconds" toml:"tick_seconds"`
	StatusCron  string `yaml:"status_cron" toml:"status_cron"` // spec de robfig/cron, "" desactiva
	Rounds      int    `yaml:"rounds" toml:"rounds"`
}

// HTTPConfig controla la API de lectura.
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"` // "" desactiva el servidor
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug | info | warn | error
	Format string `yaml:"format" toml:"format"` // text | json
}

// Load carga la configuración desde un archivo YAML o TOML (según extensión)
// y el archivo .env si existe. Las variables de entorno sobreescriben el archivo.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Interval devuelve la duración de cada fase del round.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Market.IntervalSeconds) * time.Second
}

// Buffer devuelve la tolerancia tras lock/close.
func (c *Config) Buffer() time.Duration {
	return time.Duration(c.Market.BufferSeconds) * time.Second
}

// Tick devuelve cada cuánto el keeper revisa los slots.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Keeper.TickSeconds) * time.Second
}

// Genesis devuelve el instante del slot 0.
func (c *Config) Genesis() time.Time {
	return time.Unix(c.Scheduler.GenesisUnix, 0).UTC()
}

// Owner valida y normaliza la dirección del owner.
func (c *Config) Owner() (domain.Address, error) {
	return domain.ParseAddress(c.Market.Owner)
}

// MarketParams convierte la sección market al tipo del dominio.
func (c *Config) MarketParams() (domain.MarketConfig, error) {
	self, err := domain.ParseAddress(c.Market.Self)
	if err != nil {
		return domain.MarketConfig{}, fmt.Errorf("config: market.self: %w", err)
	}
	mc := domain.MarketConfig{
		PoolID:   c.Market.PoolID,
		Self:     self,
		FeeBps:   c.Market.FeeBps,
		MinStake: c.Market.MinStake,
		Interval: c.Interval(),
		Buffer:   c.Buffer(),
	}
	if err := mc.Validate(); err != nil {
		return domain.MarketConfig{}, fmt.Errorf("config: %w", err)
	}
	return mc, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"PREDICT_POOL_ID", &cfg.Market.PoolID},
		{"PREDICT_OWNER", &cfg.Market.Owner},
		{"PREDICT_SELF", &cfg.Market.Self},
		{"PREDICT_PRICE_URL", &cfg.Price.BaseURL},
		{"PREDICT_STORAGE_DRIVER", &cfg.Storage.Driver},
		{"PREDICT_STORAGE_DSN", &cfg.Storage.DSN},
		{"PREDICT_HTTP_ADDR", &cfg.HTTP.Addr},
		{"REDIS_ADDR", &cfg.Storage.Redis.Addr},
		{"REDIS_PASSWORD", &cfg.Storage.Redis.Password},
		{"POSTGRES_DSN", &cfg.Events.PostgresDSN},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Market.FeeBps == 0 {
		cfg.Market.FeeBps = 1000 // 10%, el máximo permitido
	}
	if cfg.Market.MinStake == 0 {
		cfg.Market.MinStake = 1_000_000_000 // 1 coin
	}
	if cfg.Market.IntervalSeconds <= 0 {
		cfg.Market.IntervalSeconds = 300
	}
	if cfg.Market.BufferSeconds <= 0 {
		cfg.Market.BufferSeconds = 60
	}
	if cfg.Price.Decimals <= 0 {
		cfg.Price.Decimals = 9
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "predictbot.db"
	}
	if cfg.Storage.Redis.KeyPrefix == "" {
		cfg.Storage.Redis.KeyPrefix = "predictbot:"
	}
	if cfg.Keeper.TickSeconds <= 0 {
		cfg.Keeper.TickSeconds = 1
	}
	if cfg.Keeper.Rounds <= 0 {
		cfg.Keeper.Rounds = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
