// Package config loads herdbook settings from optional .env files and
// HERDBOOK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"herdbook/internal/ai"
	"herdbook/internal/core"
	"herdbook/internal/photos"
	"herdbook/internal/platform/logger"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every environment variable name.
const Prefix = "HERDBOOK_"

// DefaultEnvFile is loaded when present and no explicit files are given.
const DefaultEnvFile = ".env"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the resolved process configuration.
type Config struct {
	HTTPAddr        string        `validate:"required"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	StorageDriver string `validate:"oneof=memory sqlite postgres redis"`
	SQLitePath    string
	PostgresDSN   string `validate:"required_if=StorageDriver postgres"`
	RedisURL      string `validate:"required_if=StorageDriver redis"`
	RedisPrefix   string

	PhotoDriver      string `validate:"oneof=memory fs s3"`
	PhotoRoot        string
	PhotoS3Bucket    string `validate:"required_if=PhotoDriver s3"`
	PhotoS3Region    string
	PhotoS3Endpoint  string `validate:"omitempty,url"`
	PhotoS3PathStyle bool

	AIKey      string
	AIModel    string
	AIEndpoint string        `validate:"omitempty,url"`
	AITimeout  time.Duration `validate:"gt=0"`

	KafkaBrokers []string `validate:"dive,hostname_port"`
	KafkaTopic   string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
	// TraceFile receives one JSON line per service operation when set.
	TraceFile string
}

// Load reads the given .env files (or DefaultEnvFile when it exists), then
// resolves configuration from the process environment. Variables already set
// in the environment win over .env entries.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			envFiles = []string{DefaultEnvFile}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, fmt.Errorf("load env files: %w", err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup resolves configuration through lookup, applying defaults for
// unset variables, and validates the result.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		HTTPAddr:        r.str("HTTP_ADDR", ":8080"),
		ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),

		StorageDriver: strings.ToLower(r.str("STORAGE_DRIVER", string(core.StorageSQLite))),
		SQLitePath:    r.str("SQLITE_PATH", "herdbook.db"),
		PostgresDSN:   r.str("POSTGRES_DSN", ""),
		RedisURL:      r.str("REDIS_URL", ""),
		RedisPrefix:   r.str("REDIS_PREFIX", "herdbook"),

		PhotoDriver:      strings.ToLower(r.str("PHOTO_DRIVER", string(photos.DriverFilesystem))),
		PhotoRoot:        r.str("PHOTO_ROOT", "./photodata"),
		PhotoS3Bucket:    r.str("PHOTO_S3_BUCKET", ""),
		PhotoS3Region:    r.str("PHOTO_S3_REGION", ""),
		PhotoS3Endpoint:  r.str("PHOTO_S3_ENDPOINT", ""),
		PhotoS3PathStyle: r.boolean("PHOTO_S3_PATH_STYLE", false),

		AIKey:      r.str("AI_API_KEY", ""),
		AIModel:    r.str("AI_MODEL", ai.DefaultModel),
		AIEndpoint: r.str("AI_ENDPOINT", ai.DefaultEndpoint),
		AITimeout:  r.duration("AI_TIMEOUT", ai.DefaultTimeout),

		KafkaBrokers: r.list("KAFKA_BROKERS"),
		KafkaTopic:   r.str("KAFKA_TOPIC", ""),

		LogLevel:  strings.ToLower(r.str("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(r.str("LOG_FORMAT", logger.FormatText)),
		TraceFile: r.str("TRACE_FILE", ""),
	}
	if cfg.AIKey == "" {
		if v, ok := lookup("GEMINI_API_KEY"); ok {
			cfg.AIKey = strings.TrimSpace(v)
		}
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, describe(err)
	}
	return cfg, nil
}

// Storage returns the registry backend selection.
func (c Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.StorageDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
		RedisURL:    c.RedisURL,
		RedisPrefix: c.RedisPrefix,
	}
}

// Photos returns the photo driver selection.
func (c Config) Photos() photos.Config {
	return photos.Config{
		Driver: photos.Driver(c.PhotoDriver),
		FSRoot: c.PhotoRoot,
		S3: photos.S3Config{
			Bucket:    c.PhotoS3Bucket,
			Region:    c.PhotoS3Region,
			Endpoint:  c.PhotoS3Endpoint,
			PathStyle: c.PhotoS3PathStyle,
		},
	}
}

// AI returns the model client configuration.
func (c Config) AI() ai.Config {
	return ai.Config{APIKey: c.AIKey, Model: c.AIModel, Endpoint: c.AIEndpoint, Timeout: c.AITimeout}
}

// Logger returns the logging configuration.
func (c Config) Logger() logger.Config {
	return logger.Config{Level: c.LogLevel, Format: c.LogFormat}
}

// KafkaEnabled reports whether alert broadcast is configured.
func (c Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(Prefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return def
	}
	return d
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return def
	}
	return b
}

func (r *reader) list(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// describe flattens validator errors into one message naming each field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s: failed %q", fe.StructField(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
