package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"policysync/internal/changelog/models"
	dErrors "policysync/pkg/domain-errors"
	pstrings "policysync/pkg/platform/strings"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// Server captures the admin HTTP surface.
type Server struct {
	Addr       string
	AdminToken string
}

// ZMS describes the remote policy service.
type ZMS struct {
	URL            string
	Timeout        time.Duration
	PublicKeysFile string
	Concurrency    int
}

// Sync controls pass scheduling.
type Sync struct {
	Mode        models.Mode
	Interval    time.Duration
	PassTimeout time.Duration
	LockTTL     time.Duration
}

// Store selects and configures the replica backend.
type Store struct {
	Backend     string
	Root        string
	DatabaseURL string
	SQLitePath  string
}

// RedisConfig is shared by the redis backend and the distributed pass lock.
type RedisConfig struct {
	URL          string
	Prefix       string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the audit sink. An empty broker list keeps audit events
// in the log only.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

type Logging struct {
	Level  string
	Format string
}

type Config struct {
	Server  Server
	ZMS     ZMS
	Sync    Sync
	Store   Store
	Redis   RedisConfig
	Kafka   Kafka
	Logging Logging
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []string
	duration := func(key string, def time.Duration) time.Duration {
		d, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}
	integer := func(key string, def int) int {
		n, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return n
	}

	cfg := Config{
		Server: Server{
			Addr:       envString("SYNCER_ADDR", ":8080"),
			AdminToken: os.Getenv("SYNCER_ADMIN_TOKEN"),
		},
		ZMS: ZMS{
			URL:            os.Getenv("ZMS_URL"),
			Timeout:        duration("ZMS_TIMEOUT", 30*time.Second),
			PublicKeysFile: os.Getenv("ZMS_PUBLIC_KEYS_FILE"),
			Concurrency:    integer("ZMS_CONCURRENCY", 4),
		},
		Sync: Sync{
			Mode:        models.Mode(envString("SYNC_MODE", string(models.ModeJWS))),
			Interval:    duration("SYNC_INTERVAL", time.Minute),
			PassTimeout: duration("SYNC_PASS_TIMEOUT", 5*time.Minute),
			LockTTL:     duration("LOCK_TTL", 10*time.Minute),
		},
		Store: Store{
			Backend:     envString("STORE_BACKEND", BackendFile),
			Root:        envString("STORE_ROOT", "/var/lib/policysync/domains"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
			SQLitePath:  envString("SQLITE_PATH", "/var/lib/policysync/changelog.db"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			Prefix:       envString("REDIS_PREFIX", "changelog"),
			PoolSize:     integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    pstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: envString("KAFKA_AUDIT_TOPIC", "policysync.audit"),
		},
		Logging: Logging{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
	}

	if len(errs) > 0 {
		return cfg, dErrors.New(dErrors.CodeValidation, strings.Join(errs, "; "))
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations the syncer cannot start with.
func (c Config) Validate() error {
	var problems []string
	if c.ZMS.URL == "" {
		problems = append(problems, "ZMS_URL is required")
	}
	if c.ZMS.PublicKeysFile == "" {
		problems = append(problems, "ZMS_PUBLIC_KEYS_FILE is required")
	}
	if !c.Sync.Mode.IsValid() {
		problems = append(problems, fmt.Sprintf("SYNC_MODE %q must be %q or %q", c.Sync.Mode, models.ModeSigned, models.ModeJWS))
	}
	if c.Sync.Interval <= 0 {
		problems = append(problems, "SYNC_INTERVAL must be positive")
	}
	if c.Sync.PassTimeout <= 0 {
		problems = append(problems, "SYNC_PASS_TIMEOUT must be positive")
	}

	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Root == "" {
			problems = append(problems, "STORE_ROOT is required for the file backend")
		}
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres backend")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			problems = append(problems, "SQLITE_PATH is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			problems = append(problems, "REDIS_URL is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_BACKEND %q", c.Store.Backend))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("unknown LOG_FORMAT %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return dErrors.New(dErrors.CodeValidation, strings.Join(problems, "; "))
	}
	return nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}
