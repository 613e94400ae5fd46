// Package config loads settings from a YAML file, the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Lllllllleong/mangasensei/internal/bucket"
	"github.com/Lllllllleong/mangasensei/internal/intake"
	"github.com/Lllllllleong/mangasensei/internal/ledger"
	"github.com/Lllllllleong/mangasensei/internal/processor"
	"github.com/Lllllllleong/mangasensei/internal/telemetry"
)

const (
	// EnvPrefix prefixes every environment override, e.g. MANGA_SENSEI_PROCESSOR_URL.
	EnvPrefix = "MANGA_SENSEI"
	// Name is the config file name without extension.
	Name = "manga-sensei"
)

// Config is the resolved configuration of one process.
type Config struct {
	ServerAddr       string
	Processor        processor.Config
	Storage          bucket.Config
	ArchiveBucket    string
	Ledger           ledger.Config
	Dedupe           bool
	Intake           intake.Config
	BatchConcurrency int
	BlobTTL          time.Duration
	SessionTTL       time.Duration
	LogLevel         slog.Level
	Tracing          telemetry.TracingConfig
}

// New returns a viper instance with defaults, env binding and the config file
// search path set up. An explicit configFile must exist; the default search
// path may come up empty.
func New(configFile string) (*viper.Viper, error) {
	// .env values never override variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names used by earlier deployments of the page.
	_ = v.BindEnv("storage.supabase.url", EnvPrefix+"_STORAGE_SUPABASE_URL", "SUPABASE_URL")
	_ = v.BindEnv("storage.supabase.key", EnvPrefix+"_STORAGE_SUPABASE_KEY", "SUPABASE_ANON_KEY")
	_ = v.BindEnv("ledger.project_id", EnvPrefix+"_LEDGER_PROJECT_ID", "PROJECT_ID")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName(Name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", Name))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("processor.url", processor.DefaultURL)
	v.SetDefault("processor.timeout", 5*time.Minute)
	v.SetDefault("processor.max_retries", 0)

	v.SetDefault("storage.backend", bucket.BackendSupabase)
	v.SetDefault("storage.bucket", bucket.DefaultBucket)
	v.SetDefault("storage.supabase.url", "")
	v.SetDefault("storage.supabase.key", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")

	v.SetDefault("archive.bucket", "")

	v.SetDefault("ledger.backend", ledger.BackendSQLite)
	v.SetDefault("ledger.path", ledger.DefaultSQLitePath)
	v.SetDefault("ledger.project_id", "")
	v.SetDefault("ledger.database_id", "")
	v.SetDefault("ledger.collection", ledger.DefaultCollection)
	v.SetDefault("ledger.dedupe", false)

	v.SetDefault("intake.max_bytes", intake.DefaultMaxBytes)
	v.SetDefault("intake.inspect_content", true)

	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("blobs.ttl", 10*time.Minute)
	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("tracing.exporter", telemetry.ExporterLog)
	v.SetDefault("tracing.service_name", Name)
}

// Load resolves a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	level, err := ParseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerAddr: v.GetString("server.addr"),
		Processor: processor.Config{
			URL:        v.GetString("processor.url"),
			Timeout:    v.GetDuration("processor.timeout"),
			MaxRetries: v.GetInt("processor.max_retries"),
		},
		Storage: bucket.Config{
			Backend:     v.GetString("storage.backend"),
			Bucket:      v.GetString("storage.bucket"),
			SupabaseURL: v.GetString("storage.supabase.url"),
			SupabaseKey: v.GetString("storage.supabase.key"),
			S3Region:    v.GetString("storage.s3.region"),
			S3Endpoint:  v.GetString("storage.s3.endpoint"),
		},
		ArchiveBucket: v.GetString("archive.bucket"),
		Ledger: ledger.Config{
			Backend:    v.GetString("ledger.backend"),
			Path:       v.GetString("ledger.path"),
			ProjectID:  v.GetString("ledger.project_id"),
			DatabaseID: v.GetString("ledger.database_id"),
			Collection: v.GetString("ledger.collection"),
		},
		Dedupe: v.GetBool("ledger.dedupe"),
		Intake: intake.Config{
			MaxBytes:       v.GetInt64("intake.max_bytes"),
			InspectContent: v.GetBool("intake.inspect_content"),
		},
		BatchConcurrency: v.GetInt("batch.concurrency"),
		BlobTTL:          v.GetDuration("blobs.ttl"),
		SessionTTL:       v.GetDuration("session.ttl"),
		LogLevel:         level,
		Tracing: telemetry.TracingConfig{
			Exporter:    v.GetString("tracing.exporter"),
			ServiceName: v.GetString("tracing.service_name"),
		},
	}

	if cfg.Processor.URL == "" {
		return nil, errors.New("processor.url must be set")
	}
	if cfg.Processor.MaxRetries < 0 {
		return nil, fmt.Errorf("processor.max_retries must not be negative, got %d", cfg.Processor.MaxRetries)
	}
	return cfg, nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: %w", s, err)
	}
	return level, nil
}
