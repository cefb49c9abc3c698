package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "credforge.yaml"

// ConfigFileEnv overrides DefaultConfigFile.
const ConfigFileEnv = "CREDFORGE_CONFIG"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if v := os.Getenv(ConfigFileEnv); v != "" {
		path = v
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	if err := loadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML decodes the YAML file over cfg. A missing file is not an error;
// unknown keys are, so a misspelt option cannot silently fall back to its
// default.
func loadYAML(cfg *Config, path string) error {
	f, err := os.Open(path) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// envOverlay applies non-empty environment variables and remembers every
// value that failed to parse.
type envOverlay struct {
	errs []error
}

func (e *envOverlay) err() error { return errors.Join(e.errs...) }

// loadEnv overlays environment variables onto cfg.
func loadEnv(cfg *Config) error {
	var e envOverlay

	setString(&cfg.Server.Port, "CREDFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "CREDFORGE_CORS_ORIGIN")
	setParsed(&e, &cfg.Server.ShutdownTimeout, "CREDFORGE_SHUTDOWN_TIMEOUT", time.ParseDuration)

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setParsed(&e, &cfg.Postgres.MaxConns, "CREDFORGE_PG_MAX_CONNS", parseInt32)
	setParsed(&e, &cfg.Postgres.MinConns, "CREDFORGE_PG_MIN_CONNS", parseInt32)
	setParsed(&e, &cfg.Postgres.MaxConnLifetime, "CREDFORGE_PG_MAX_CONN_LIFETIME", time.ParseDuration)
	setParsed(&e, &cfg.Postgres.MaxConnIdleTime, "CREDFORGE_PG_MAX_CONN_IDLE_TIME", time.ParseDuration)
	setParsed(&e, &cfg.Postgres.HealthCheck, "CREDFORGE_PG_HEALTH_CHECK", time.ParseDuration)
	setParsed(&e, &cfg.Postgres.StatementTimeout, "CREDFORGE_PG_STATEMENT_TIMEOUT", time.ParseDuration)

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "CREDFORGE_NATS_STREAM")
	setParsed(&e, &cfg.NATS.MaxReconnects, "CREDFORGE_NATS_MAX_RECONNECTS", strconv.Atoi)
	setParsed(&e, &cfg.NATS.ReconnectWait, "CREDFORGE_NATS_RECONNECT_WAIT", time.ParseDuration)

	setString(&cfg.Logging.Level, "CREDFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CREDFORGE_LOG_SERVICE")
	setString(&cfg.Logging.Format, "CREDFORGE_LOG_FORMAT")
	setParsed(&e, &cfg.Logging.Async, "CREDFORGE_LOG_ASYNC", strconv.ParseBool)

	setParsed(&e, &cfg.Breaker.MaxFailures, "CREDFORGE_BREAKER_MAX_FAILURES", strconv.Atoi)
	setParsed(&e, &cfg.Breaker.Timeout, "CREDFORGE_BREAKER_TIMEOUT", time.ParseDuration)

	setParsed(&e, &cfg.Cache.L1MaxSizeMB, "CREDFORGE_CACHE_L1_SIZE_MB", parseInt64)
	setParsed(&e, &cfg.Cache.L1TTL, "CREDFORGE_CACHE_L1_TTL", time.ParseDuration)
	setString(&cfg.Cache.L2Bucket, "CREDFORGE_CACHE_L2_BUCKET")
	setParsed(&e, &cfg.Cache.L2TTL, "CREDFORGE_CACHE_L2_TTL", time.ParseDuration)
	setParsed(&e, &cfg.Cache.CredentialsTTL, "CREDFORGE_CACHE_CREDENTIALS_TTL", time.ParseDuration)

	setString(&cfg.Crypto.KeyDir, "CREDFORGE_KEY_DIR")
	setString(&cfg.Crypto.CacheSecret, "CREDFORGE_CACHE_SECRET")
	setParsed(&e, &cfg.Crypto.DecryptConcurrency, "CREDFORGE_DECRYPT_CONCURRENCY", strconv.Atoi)

	setParsed(&e, &cfg.OTEL.Enabled, "CREDFORGE_OTEL_ENABLED", strconv.ParseBool)
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setParsed(&e, &cfg.OTEL.Insecure, "CREDFORGE_OTEL_INSECURE", strconv.ParseBool)
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setParsed(&e, &cfg.OTEL.SampleRate, "CREDFORGE_OTEL_SAMPLE_RATE", parseFloat64)

	setString(&cfg.Schema.Path, "CREDFORGE_SCHEMA_PATH")
	setString(&cfg.Hosting.SecretsFile, "CREDFORGE_SECRETS_FILE")
	setList(&cfg.Filter.Include, "CREDFORGE_PROVIDER_INCLUDE")
	setList(&cfg.Filter.Exclude, "CREDFORGE_PROVIDER_EXCLUDE")
	setParsed(&e, &cfg.Limits.MaxBodyBytes, "CREDFORGE_MAX_BODY_BYTES", parseInt64)

	return e.err()
}

var validQuotaTypes = map[string]bool{"trial": true, "paid": true, "free": true}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Postgres.MinConns > cfg.Postgres.MaxConns {
		return errors.New("postgres.min_conns must not exceed max_conns")
	}
	if cfg.Postgres.StatementTimeout < 0 {
		return errors.New("postgres.statement_timeout must be >= 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Cache.CredentialsTTL <= 0 {
		return errors.New("cache.credentials_ttl must be > 0")
	}
	if cfg.Cache.L1TTL <= 0 {
		return errors.New("cache.l1_ttl must be > 0")
	}
	if cfg.Cache.L1MaxSizeMB < 1 {
		return errors.New("cache.l1_max_size_mb must be >= 1")
	}
	if cfg.Crypto.KeyDir == "" {
		return errors.New("crypto.key_dir is required")
	}
	if cfg.Crypto.DecryptConcurrency < 1 {
		return errors.New("crypto.decrypt_concurrency must be >= 1")
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format %q must be json or text", cfg.Logging.Format)
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be between 0 and 1")
	}
	if cfg.Limits.MaxBodyBytes < 1 {
		return errors.New("limits.max_body_bytes must be >= 1")
	}

	seen := make(map[string]bool, len(cfg.Hosting.Providers))
	for i, p := range cfg.Hosting.Providers {
		if p.Provider == "" {
			return fmt.Errorf("hosting.providers[%d].provider is required", i)
		}
		if seen[p.Provider] {
			return fmt.Errorf("hosting provider %s declared twice", p.Provider)
		}
		seen[p.Provider] = true
		for _, q := range p.Quotas {
			if !validQuotaTypes[q.Type] {
				return fmt.Errorf("hosting provider %s: unknown quota type %q", p.Provider, q.Type)
			}
			if q.Limit < -1 {
				return fmt.Errorf("hosting provider %s: quota %s limit must be >= -1", p.Provider, q.Type)
			}
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setParsed leaves dst untouched when the variable is unset or malformed.
func setParsed[T any](e *envOverlay, dst *T, key string, parse func(string) (T, error)) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parsed, err := parse(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, v, err))
		return
	}
	*dst = parsed
}

func parseInt32(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	return int32(n), err
}

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func parseFloat64(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// setList splits a comma-separated env value into a trimmed, non-empty list.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}
