package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds everything the batch jobs and the dashboard read at startup.
// Values come from an optional YAML file with environment variable overrides.
// Secrets (PGPASSWORD, DATABASE_URL, REDIS_PASSWORD) are only read from the
// environment.
type Config struct {
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	Server      ServerConfig   `yaml:"server"`
	Log         LogConfig      `yaml:"log"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Generate    GenerateConfig `yaml:"generate"`
	Train       TrainConfig    `yaml:"train"`
	Import      ImportConfig   `yaml:"import"`
	CatalogPath string         `yaml:"catalog_path" env:"CATALOG_PATH" env-default:""`
}

// DatabaseConfig holds PostgreSQL/PostGIS connection settings.
type DatabaseConfig struct {
	URL             string        `yaml:"-" env:"DATABASE_URL"` // Secret - overrides the fields below
	Host            string        `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port            int           `yaml:"port" env:"PGPORT" env-default:"5432"`
	User            string        `yaml:"user" env:"PGUSER" env-default:"postgres"`
	Password        string        `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Name            string        `yaml:"name" env:"PGDATABASE" env-default:"crime_analytics"`
	SSLMode         string        `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"PG_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"PG_MAX_IDLE_CONNS" env-default:"10"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"PG_CONN_MAX_LIFETIME" env-default:"30m"`
	SlowQuery       time.Duration `yaml:"slow_query" env:"PG_SLOW_QUERY" env-default:"200ms"`
}

// RedisConfig configures the dashboard query cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:""`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"10m"`
}

type ServerConfig struct {
	Port           string   `yaml:"port" env:"PORT" env-default:"5050"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:5173"`
	RateLimit      float64  `yaml:"rate_limit" env:"RATE_LIMIT" env-default:"20"` // requests per second, 0 disables
	RateBurst      int      `yaml:"rate_burst" env:"RATE_BURST" env-default:"40"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"` // json or console
}

type MetricsConfig struct {
	// PushgatewayURL receives the batch job counters when set.
	PushgatewayURL string `yaml:"pushgateway_url" env:"PUSHGATEWAY_URL" env-default:""`
}

// ImportConfig names the shapefile attributes the boundary loader reads.
type ImportConfig struct {
	Path        string `yaml:"path" env:"SHAPEFILE_PATH" env-default:""`
	IDField     string `yaml:"id_field" env:"SHAPEFILE_ID_FIELD" env-default:"GID_2"`
	NameField   string `yaml:"name_field" env:"SHAPEFILE_NAME_FIELD" env-default:"NAME_2"`
	ParentField string `yaml:"parent_field" env:"SHAPEFILE_PARENT_FIELD" env-default:"NAME_1"`
}

// GenerateConfig drives the synthetic record generator. Either Count or
// PerDistrict is used; PerDistrict wins when both are set.
type GenerateConfig struct {
	Count       int    `yaml:"count" env:"GENERATE_COUNT" env-default:"250000"`
	PerDistrict int    `yaml:"per_district" env:"GENERATE_PER_DISTRICT" env-default:"0"`
	Suspects    int    `yaml:"suspects" env:"GENERATE_SUSPECTS" env-default:"5000"`
	From        string `yaml:"from" env:"GENERATE_FROM" env-default:""` // RFC3339 or 2006-01-02, default To minus 2 years
	To          string `yaml:"to" env:"GENERATE_TO" env-default:""`     // default now
	MaxAttempts int    `yaml:"max_attempts" env:"GENERATE_MAX_ATTEMPTS" env-default:"1000"`
	Workers     int    `yaml:"workers" env:"GENERATE_WORKERS" env-default:"4"`
	BatchSize   int    `yaml:"batch_size" env:"GENERATE_BATCH_SIZE" env-default:"5000"`
	Seed        int64  `yaml:"seed" env:"GENERATE_SEED" env-default:"0"` // 0 picks a time-based seed
}

// TrainConfig drives the predictor trainer.
type TrainConfig struct {
	MinRecords   int     `yaml:"min_records" env:"TRAIN_MIN_RECORDS" env-default:"10"`
	LookbackDays int     `yaml:"lookback_days" env:"TRAIN_LOOKBACK_DAYS" env-default:"365"`
	ScoreMin     float64 `yaml:"score_min" env:"TRAIN_SCORE_MIN" env-default:"0"`
	ScoreMax     float64 `yaml:"score_max" env:"TRAIN_SCORE_MAX" env-default:"1"`
	NeutralScore float64 `yaml:"neutral_score" env:"TRAIN_NEUTRAL_SCORE" env-default:"0.5"`
	Epochs       int     `yaml:"epochs" env:"TRAIN_EPOCHS" env-default:"200"`
	LearningRate float64 `yaml:"learning_rate" env:"TRAIN_LEARNING_RATE" env-default:"0.5"`
	Holdout      float64 `yaml:"holdout" env:"TRAIN_HOLDOUT" env-default:"0.2"`
	Seed         int64   `yaml:"seed" env:"TRAIN_SEED" env-default:"42"`
}

// Load reads configuration from the YAML file at path (if it exists) with
// environment variable overrides. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			return cfg, cfg.Validate()
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the numeric ranges the jobs rely on.
func (c *Config) Validate() error {
	if c.Train.ScoreMin >= c.Train.ScoreMax {
		return fmt.Errorf("train.score_min (%v) must be below train.score_max (%v)", c.Train.ScoreMin, c.Train.ScoreMax)
	}
	if c.Train.NeutralScore < c.Train.ScoreMin || c.Train.NeutralScore > c.Train.ScoreMax {
		return fmt.Errorf("train.neutral_score %v is outside [%v, %v]", c.Train.NeutralScore, c.Train.ScoreMin, c.Train.ScoreMax)
	}
	if c.Train.Holdout < 0 || c.Train.Holdout >= 1 {
		return fmt.Errorf("train.holdout must be in [0, 1), got %v", c.Train.Holdout)
	}
	if c.Generate.MaxAttempts <= 0 {
		return fmt.Errorf("generate.max_attempts must be positive, got %d", c.Generate.MaxAttempts)
	}
	if c.Generate.Count < 0 || c.Generate.PerDistrict < 0 || c.Generate.Suspects < 0 {
		return fmt.Errorf("generate counts must not be negative")
	}
	return nil
}

// DSN returns the connection string, preferring DATABASE_URL.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else {
		u.User = url.User(d.User)
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Range resolves the generation time window relative to now.
func (g GenerateConfig) Range(now time.Time) (time.Time, time.Time, error) {
	to := now.UTC()
	if g.To != "" {
		t, err := ParseTime(g.To)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("generate.to: %w", err)
		}
		to = t
	}
	from := to.AddDate(-2, 0, 0)
	if g.From != "" {
		t, err := ParseTime(g.From)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("generate.from: %w", err)
		}
		from = t
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("generate.from %s is not before generate.to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}

// ParseTime accepts RFC3339 timestamps or plain dates, always returning UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}
