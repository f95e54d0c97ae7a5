package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Engine drivers.
const (
	DriverMemory = "memory"
	DriverBleve  = "bleve"
	DriverRedis  = "redis"
)

// Config holds the dedup service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
	Registry RegistryConfig `yaml:"registry"`
	Engine   EngineConfig   `yaml:"engine"`
	Query    QueryConfig    `yaml:"query"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds token checking settings.
type AuthConfig struct {
	RequireToken bool     `yaml:"require_token"`
	Tokens       []string `yaml:"tokens"` // empty = any non-empty token is accepted
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int    `yaml:"port"`
	BasePath        string `yaml:"base_path"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
}

// RegistryConfig locates the schema and index declarations.
type RegistryConfig struct {
	WorkDir    string `yaml:"work_dir"`
	ConfigFile string `yaml:"config_file"` // relative to work_dir unless absolute
}

// EngineConfig selects and tunes the index engine.
type EngineConfig struct {
	Driver        string      `yaml:"driver"` // memory, bleve, redis (default: bleve)
	MinSimilarity float64     `yaml:"min_similarity"`
	MaxCandidates int         `yaml:"max_candidates"`
	CacheSize     int         `yaml:"cache_size"` // 0 disables the search cache
	Redis         RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the redis driver.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// QueryConfig tunes the duplicate query pipeline.
type QueryConfig struct {
	DefaultQuantity int `yaml:"default_quantity"`
	TimeoutSec      int `yaml:"timeout_sec"` // 0 = no fan-out deadline
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from the YAML file at path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.BasePath == "" {
		c.HTTP.BasePath = "/services"
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 32 << 20
	}
	if c.Registry.WorkDir == "" {
		c.Registry.WorkDir = "."
	}
	if c.Registry.ConfigFile == "" {
		c.Registry.ConfigFile = "dedup.xml"
	}
	if c.Engine.Driver == "" {
		c.Engine.Driver = DriverBleve
	}
	if c.Engine.MinSimilarity <= 0 {
		c.Engine.MinSimilarity = 0.6
	}
	if c.Engine.MaxCandidates <= 0 {
		c.Engine.MaxCandidates = 1000
	}
	if c.Engine.Redis.KeyPrefix == "" {
		c.Engine.Redis.KeyPrefix = "dedup:"
	}
	if c.Engine.Redis.ReadinessTimeout <= 0 {
		c.Engine.Redis.ReadinessTimeout = 10
	}
	if c.Query.DefaultQuantity <= 0 {
		c.Query.DefaultQuantity = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !strings.HasPrefix(c.HTTP.BasePath, "/") {
		return fmt.Errorf("http.base_path must start with \"/\", got %q", c.HTTP.BasePath)
	}
	switch c.Engine.Driver {
	case DriverMemory, DriverBleve:
	case DriverRedis:
		if len(c.Engine.Redis.Addrs) == 0 {
			return fmt.Errorf("engine.redis.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("engine.driver must be %q, %q or %q, got %q",
			DriverMemory, DriverBleve, DriverRedis, c.Engine.Driver)
	}
	if c.Engine.MinSimilarity > 1 {
		return fmt.Errorf("engine.min_similarity must be at most 1, got %g", c.Engine.MinSimilarity)
	}
	if c.Engine.CacheSize < 0 {
		return fmt.Errorf("engine.cache_size must not be negative, got %d", c.Engine.CacheSize)
	}
	if c.Query.TimeoutSec < 0 {
		return fmt.Errorf("query.timeout_sec must not be negative, got %d", c.Query.TimeoutSec)
	}
	return nil
}

// RegistryPath returns the registry config file resolved against the work dir.
func (c *Config) RegistryPath() string {
	if filepath.IsAbs(c.Registry.ConfigFile) {
		return c.Registry.ConfigFile
	}
	return filepath.Join(c.Registry.WorkDir, c.Registry.ConfigFile)
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
