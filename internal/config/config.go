package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	HotStore  HotStoreConfig
	Database  DatabaseConfig
	PoolDB    PoolDBConfig
	Catalog   CatalogConfig
	Purchase  PurchaseConfig
	Scheduler SchedulerConfig
	Payment   PaymentConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"mailseller-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	AdminToken  string `envconfig:"ADMIN_TOKEN" default:""`
}

// HotStoreConfig selects and configures the hot store backend.
type HotStoreConfig struct {
	Type string `envconfig:"HOT_STORE_TYPE" default:"memory"` // memory or redis

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	DiscountTTL time.Duration `envconfig:"DISCOUNT_CACHE_TTL" default:"1h"`
}

// DatabaseConfig holds durable store settings (balances, tokens,
// transactions).
type DatabaseConfig struct {
	Type string `envconfig:"DB_TYPE" default:"sqlite"` // sqlite or mysql
	Path string `envconfig:"DB_PATH" default:"./data/mailseller.db"`

	// MySQL settings
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	Name     string `envconfig:"DB_NAME" default:"mailseller"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASS" default:""`
}

// PoolDBConfig holds the durable inventory pool settings. Only needed
// when the catalog declares durable-backend item types.
type PoolDBConfig struct {
	Enabled  bool   `envconfig:"POOL_DB_ENABLED" default:"false"`
	Host     string `envconfig:"POOL_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"POOL_DB_PORT" default:"5432"`
	Name     string `envconfig:"POOL_DB_NAME" default:"mailseller"`
	User     string `envconfig:"POOL_DB_USER" default:"postgres"`
	Password string `envconfig:"POOL_DB_PASS" default:""`
	SSLMode  string `envconfig:"POOL_DB_SSLMODE" default:"disable"`
}

// CatalogConfig locates the item type and tier file.
type CatalogConfig struct {
	Path           string        `envconfig:"CATALOG_PATH" default:"./config/catalog.yaml"`
	ReloadInterval time.Duration `envconfig:"CATALOG_RELOAD_INTERVAL" default:"60s"`
}

// PurchaseConfig bounds purchase requests.
type PurchaseConfig struct {
	MaxQuantity int `envconfig:"PURCHASE_MAX_QUANTITY" default:"100"`
}

// SchedulerConfig holds background loop intervals.
type SchedulerConfig struct {
	SyncInterval    time.Duration `envconfig:"SYNC_INTERVAL" default:"5s"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"5m"`
	PruneInterval   time.Duration `envconfig:"PRUNE_INTERVAL" default:"60s"`
	TxFlushInterval time.Duration `envconfig:"TX_FLUSH_INTERVAL" default:"1s"`
}

// PaymentConfig holds payment provider webhook settings.
type PaymentConfig struct {
	APIKey string `envconfig:"PAYMENT_API_KEY" default:""`
}

// PostgresDSN returns the PostgreSQL connection string.
func (p *PoolDBConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Name, p.SSLMode)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (h *HotStoreConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", h.RedisHost, h.RedisPort)
}

// MySQLDSN returns the MySQL data source name.
func (d *DatabaseConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
