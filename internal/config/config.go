package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongodb"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	Storage  StorageConfig  `yaml:"storage"`
	Sessions SessionsConfig `yaml:"sessions"`
	Tokens   TokensConfig   `yaml:"tokens"`
	Password PasswordConfig `yaml:"password"`
	HTTP     HTTPConfig     `yaml:"http"`
	Grpc     GRPCConfig     `yaml:"grpc"`
	Google   GoogleConfig   `yaml:"google"`
	Avatars  AvatarsConfig  `yaml:"avatars"`
}

// StorageConfig selects the primary store holding users and, unless
// Sessions overrides it, sessions.
type StorageConfig struct {
	Driver      string      `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	SQLitePath  string      `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"./storage/auth.db"`
	Mongo       MongoConfig `yaml:"mongo"`
	PostgresURL string      `yaml:"postgres_url" env:"POSTGRES_URL"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"auth"`
}

// SessionsConfig optionally moves sessions to a dedicated store.
// An empty driver keeps sessions in the primary store.
type SessionsConfig struct {
	Driver   string `yaml:"driver" env:"SESSIONS_DRIVER"`
	RedisURL string `yaml:"redis_url" env:"SESSIONS_REDIS_URL"`
	Prefix   string `yaml:"prefix" env:"SESSIONS_PREFIX" env-default:"auth:"`
}

type TokensConfig struct {
	AccessSecret  string        `yaml:"access_secret" env:"ACCESS_SECRET_JWT" env-required:"true"`
	RefreshSecret string        `yaml:"refresh_secret" env:"REFRESH_SECRET_JWT" env-required:"true"`
	AccessTTL     time.Duration `yaml:"access_ttl" env:"ACCESS_TTL" env-default:"12h"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"REFRESH_TTL" env-default:"168h"`
	Issuer        string        `yaml:"issuer" env:"TOKEN_ISSUER" env-default:"sessionauth"`
}

type PasswordConfig struct {
	BcryptCost int `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
}

type HTTPConfig struct {
	Port    int           `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	Timeout time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"10s"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080"`
}

type GRPCConfig struct {
	Port int `yaml:"port" env:"GRPC_PORT" env-default:"44044"`
}

// GoogleConfig enables federated sign-in when ClientID is set.
// The endpoint URLs default to Google's and are overridable for tests.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"GOOGLE_CLIENT_SECRET"`
	CallbackPath string `yaml:"callback_path" env:"GOOGLE_CALLBACK_PATH" env-default:"/auth/google-redirect"`
	AuthURL      string `yaml:"auth_url" env:"GOOGLE_AUTH_URL" env-default:"https://accounts.google.com/o/oauth2/v2/auth"`
	TokenURL     string `yaml:"token_url" env:"GOOGLE_TOKEN_URL" env-default:"https://oauth2.googleapis.com/token"`
	UserInfoURL  string `yaml:"userinfo_url" env:"GOOGLE_USERINFO_URL" env-default:"https://www.googleapis.com/oauth2/v2/userinfo"`
}

func (g GoogleConfig) Enabled() bool {
	return g.ClientID != ""
}

// AvatarsConfig points at the object holding the default avatar.
// Avatars are skipped when Endpoint is empty.
type AvatarsConfig struct {
	Endpoint  string `yaml:"endpoint" env:"AVATARS_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"AVATARS_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"AVATARS_SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"AVATARS_BUCKET" env-default:"avatars"`
	Object    string `yaml:"object" env:"AVATARS_DEFAULT_OBJECT" env-default:"default.png"`
	UseSSL    bool   `yaml:"use_ssl" env:"AVATARS_USE_SSL"`
}

func (a AvatarsConfig) Enabled() bool {
	return a.Endpoint != ""
}

// MustLoad loads the config from the --config flag or CONFIG_PATH and panics on failure.
func MustLoad() *Config {
	return LoadConfig(fetchConfigPath())
}

// LoadConfig is Load that panics on failure.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load reads the YAML file at path, overlays environment variables and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("unknown env: %q", c.Env)
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required")
		}
	case DriverMongo:
		if c.Storage.Mongo.URI == "" {
			return errors.New("storage.mongo.uri is required")
		}
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			return errors.New("storage.postgres_url is required")
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	switch c.Sessions.Driver {
	case "":
	case DriverRedis:
		if c.Sessions.RedisURL == "" {
			return errors.New("sessions.redis_url is required")
		}
	default:
		return fmt.Errorf("unknown sessions driver: %q", c.Sessions.Driver)
	}

	if c.Tokens.AccessSecret == c.Tokens.RefreshSecret {
		return errors.New("tokens.access_secret and tokens.refresh_secret must differ")
	}

	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		return errors.New("token ttls must be positive")
	}

	return nil
}

// fetchConfigPath fetches config path from command line flag or environment variable.
// Priority: flag > env > default.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
