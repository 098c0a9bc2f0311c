package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/vidtube/internal/logger"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 10 * 24 * time.Hour
	defaultSweepInterval = time.Hour
	defaultMediaDir      = "media"
	defaultMediaURL      = "http://localhost:8000/static"
)

// Where refresh tokens are kept
const (
	RefreshStoreDefault  = ""
	RefreshStorePostgres = "postgres"
	RefreshStoreRedis    = "redis"
	RefreshStoreMemory   = "memory"
)

type Config struct {
	// Default logging level
	LogLevel string `env:"LOG_LEVEL"`

	// Environment (development, production)
	Environment string `env:"ENVIRONMENT"`

	// Address on which the service will be run
	ListenAddr string `env:"RUN_ADDRESS"`

	// Database to connect to. If empty accounts live in memory until restart
	DatabaseDSN string `env:"DATABASE_URI"`

	// Keys to sign access and refresh tokens. Must be set and differ
	AccessSecret  string `env:"ACCESS_TOKEN_SECRET"`
	RefreshSecret string `env:"REFRESH_TOKEN_SECRET"`

	AccessTTL  time.Duration `env:"ACCESS_TOKEN_TTL"`
	RefreshTTL time.Duration `env:"REFRESH_TOKEN_TTL"`

	// One of postgres, redis, memory. Empty means the store accounts live in
	RefreshStore string `env:"REFRESH_STORE"`
	RedisAddr    string `env:"REDIS_ADDR"`

	// Expired refresh tokens purge interval
	SweepInterval time.Duration `env:"SWEEP_INTERVAL"`

	// Object storage for avatars and cover images. If bucket not set files are kept in MediaDir
	S3 S3Config `envPrefix:"S3_"`

	MediaDir string `env:"MEDIA_DIR"`
	MediaURL string `env:"MEDIA_BASE_URL"`
}

type S3Config struct {
	Endpoint  string `env:"ENDPOINT"`
	Region    string `env:"REGION"`
	Bucket    string `env:"BUCKET"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Prefix    string `env:"PREFIX"`
	PublicURL string `env:"PUBLIC_URL"`
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		ListenAddr:    defaultListenAddr,
		Environment:   defaultEnvironment,
		AccessTTL:     defaultAccessTTL,
		RefreshTTL:    defaultRefreshTTL,
		SweepInterval: defaultSweepInterval,
		MediaDir:      defaultMediaDir,
		MediaURL:      defaultMediaURL,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(envMap)
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

// Override options with variables that are set; unset ones keep current value
func (c *Config) LoadEnv(environ map[string]string) error {
	err := env.ParseWithOptions(c, env.Options{Environment: environ})
	if err != nil {
		return fmt.Errorf("can't parse environment. Err: %w", err)
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("vidtube", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.AccessSecret, "access-secret", c.AccessSecret, "Access token signing key")
	fs.StringVar(&c.RefreshSecret, "refresh-secret", c.RefreshSecret, "Refresh token signing key")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.StringVar(&c.RefreshStore, "refresh-store", c.RefreshStore, "Refresh token store (postgres, redis, memory)")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis address")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "Expired refresh tokens purge interval")
	fs.StringVar(&c.S3.Endpoint, "s3-endpoint", c.S3.Endpoint, "S3 compatible endpoint")
	fs.StringVar(&c.S3.Bucket, "s3-bucket", c.S3.Bucket, "S3 bucket for media")
	fs.StringVar(&c.MediaDir, "media-dir", c.MediaDir, "Directory for media when S3 is not configured")

	return fs.Parse(args)
}

// Check options that can't be defaulted
func (c *Config) Validate() error {
	var errs []error

	if c.AccessSecret == "" || c.RefreshSecret == "" {
		errs = append(errs, errors.New("access and refresh secrets must be set"))
	}

	switch c.RefreshStore {
	case RefreshStoreDefault, RefreshStoreMemory:
	case RefreshStorePostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("postgres refresh store requires database"))
		}
	case RefreshStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis refresh store requires redis address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown refresh store %q", c.RefreshStore))
	}

	return errors.Join(errs...)
}
