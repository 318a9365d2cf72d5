package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/linkgate/pkg/api"
	"github.com/rmax-ai/linkgate/pkg/logging"
)

const (
	defaultAddr        = "127.0.0.1:1410"
	defaultEngine      = "mem"
	defaultRedisAddr   = "127.0.0.1:6379"
	defaultRedisPrefix = "linkgate"
	defaultLeaseTTL    = 15 * time.Second
)

type Config struct {
	Addr        string        `yaml:"addr"`
	Engine      string        `yaml:"engine"`
	DBPath      string        `yaml:"db_path"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	Capacity    uint64        `yaml:"capacity"`
	LeaseTTL    time.Duration `yaml:"lease_ttl"`
	LogLevel    string        `yaml:"log_level"`
	Playground  bool          `yaml:"playground"`
	TLSCert     string        `yaml:"tls_cert"`
	TLSKey      string        `yaml:"tls_key"`

	LockTimeout  time.Duration `yaml:"lock_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// LoadConfig resolves defaults, then the YAML file, then LINKGATE_* env, then flags.
func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	config := Config{
		Addr:        defaultAddr,
		Engine:      defaultEngine,
		DBPath:      filepath.Join(cwd, "linkgate.db"),
		RedisAddr:   defaultRedisAddr,
		RedisPrefix: defaultRedisPrefix,
		LeaseTTL:    defaultLeaseTTL,
		LogLevel:    "info",
		Playground:  true,

		LockTimeout:  api.DefaultLockTimeout,
		MaxBodyBytes: api.DefaultMaxBodyBytes,
	}

	configPath := configPathFromArgs(args)
	if configPath == "" {
		configPath = os.Getenv("LINKGATE_CONFIG")
	}
	if configPath != "" {
		if err := loadFile(resolvePath(configPath, cwd), &config); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&config); err != nil {
		return Config{}, err
	}

	flagSet := flag.NewFlagSet("linkgate-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.String("config", configPath, "path to YAML config file")
	flagAddr := flagSet.String("addr", config.Addr, "HTTP listen address")
	flagEngine := flagSet.String("engine", config.Engine, "link engine: mem|sqlite|redis")
	flagDB := flagSet.String("db", config.DBPath, "path to SQLite database (engine=sqlite)")
	flagRedisAddr := flagSet.String("redis-addr", config.RedisAddr, "Redis address (engine=redis)")
	flagRedisPrefix := flagSet.String("redis-prefix", config.RedisPrefix, "Redis key prefix (engine=redis)")
	flagCapacity := flagSet.Uint64("capacity", config.Capacity, "maximum number of links, 0 for unbounded")
	flagLeaseTTL := flagSet.Duration("lease-ttl", config.LeaseTTL, "ownership lease TTL for shared engines")
	flagLogLevel := flagSet.String("log-level", config.LogLevel, "log level: debug|info|warn|error")
	flagPlayground := flagSet.Bool("playground", config.Playground, "serve the GraphQL playground on GET /")
	flagTLSCert := flagSet.String("tls-cert", config.TLSCert, "TLS certificate file")
	flagTLSKey := flagSet.String("tls-key", config.TLSKey, "TLS key file")
	flagLockTimeout := flagSet.Duration("lock-timeout", config.LockTimeout, "how long a request waits for the store lock before a 503")
	flagMaxBody := flagSet.Int64("max-body-bytes", config.MaxBodyBytes, "maximum request body size")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	config.Addr = strings.TrimSpace(*flagAddr)
	config.Engine = strings.ToLower(strings.TrimSpace(*flagEngine))
	config.DBPath = resolvePath(*flagDB, cwd)
	config.RedisAddr = strings.TrimSpace(*flagRedisAddr)
	config.RedisPrefix = strings.TrimSpace(*flagRedisPrefix)
	config.Capacity = *flagCapacity
	config.LeaseTTL = *flagLeaseTTL
	config.LogLevel = *flagLogLevel
	config.Playground = *flagPlayground
	config.TLSCert = strings.TrimSpace(*flagTLSCert)
	config.TLSKey = strings.TrimSpace(*flagTLSKey)
	config.LockTimeout = *flagLockTimeout
	config.MaxBodyBytes = *flagMaxBody

	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr cannot be empty")
	}
	switch c.Engine {
	case "mem":
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("engine=sqlite requires db")
		}
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("engine=redis requires redis-addr")
		}
		if c.RedisPrefix == "" {
			return errors.New("redis-prefix cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported engine: %s", c.Engine)
	}
	if c.Engine != "mem" && c.LeaseTTL < time.Second {
		return fmt.Errorf("lease ttl must be at least 1s, got %v", c.LeaseTTL)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be positive, got %v", c.LockTimeout)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("tls-cert and tls-key must be set together")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(config *Config) error {
	config.Addr = addrFromEnv(config.Addr)
	config.Engine = envOrDefault("LINKGATE_ENGINE", config.Engine)
	config.DBPath = envOrDefault("LINKGATE_DB_PATH", config.DBPath)
	config.RedisAddr = envOrDefault("LINKGATE_REDIS_ADDR", config.RedisAddr)
	config.RedisPrefix = envOrDefault("LINKGATE_REDIS_PREFIX", config.RedisPrefix)
	config.LogLevel = envOrDefault("LINKGATE_LOG_LEVEL", config.LogLevel)

	if v := os.Getenv("LINKGATE_CAPACITY"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid LINKGATE_CAPACITY: %w", err)
		}
		config.Capacity = parsed
	}
	if v := os.Getenv("LINKGATE_LEASE_TTL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LINKGATE_LEASE_TTL: %w", err)
		}
		config.LeaseTTL = parsed
	}
	if v := os.Getenv("LINKGATE_LOCK_TIMEOUT"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LINKGATE_LOCK_TIMEOUT: %w", err)
		}
		config.LockTimeout = parsed
	}
	if v := os.Getenv("LINKGATE_MAX_BODY_BYTES"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid LINKGATE_MAX_BODY_BYTES: %w", err)
		}
		config.MaxBodyBytes = parsed
	}
	if v := os.Getenv("LINKGATE_PLAYGROUND"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LINKGATE_PLAYGROUND: %w", err)
		}
		config.Playground = parsed
	}
	return nil
}

// configPathFromArgs finds -config before the full flag set is built,
// so file values can serve as flag defaults.
func configPathFromArgs(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("LINKGATE_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("LINKGATE_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
