package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string `env:"API_ADDR" envDefault:":8787"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MigrationsDir string `env:"FOLIO_MIGRATIONS_DIR" envDefault:"./db/migrations"`
	ReposDir      string `env:"FOLIO_REPOS_DIR" envDefault:"./data/drafts"`
	CORSOrigin    string `env:"FOLIO_CORS_ORIGIN" envDefault:"*"`
	// SQLitePath is used for references when DATABASE_URL is empty.
	SQLitePath string `env:"FOLIO_DB" envDefault:"./data/references.db"`

	DefaultStyle string `env:"FOLIO_DEFAULT_STYLE" envDefault:"vancouver"`
	Annotate     bool   `env:"FOLIO_ANNOTATE" envDefault:"true"`
	// Placeholders renders unresolved keys instead of failing the request.
	Placeholders bool `env:"FOLIO_PLACEHOLDERS" envDefault:"false"`

	MeiliURL       string `env:"MEILI_URL"`
	MeiliMasterKey string `env:"MEILI_MASTER_KEY"`

	RedisURL string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"FOLIO_CACHE_TTL" envDefault:"24h"`

	// Object storage; snapshots and exports go to the bucket when an
	// endpoint is configured.
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"folio"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	SnapshotDir string `env:"FOLIO_SNAPSHOT_DIR" envDefault:"./data/snapshots"`

	PandocPath string `env:"FOLIO_PANDOC" envDefault:"pandoc"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogFile   string `env:"LOG_FILE"`
}

// Load reads the configuration from the environment, after applying the
// given .env files. Missing .env files are ignored; variables already set in
// the environment win over the files.
func Load(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.MeiliURL = strings.TrimSpace(cfg.MeiliURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.MinioEndpoint = strings.TrimSpace(cfg.MinioEndpoint)
	return cfg, nil
}
