package dedup

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dedup/internal/config"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	workDir    string
	configFile string

	driver           string // "memory", "bleve" or "redis"
	addrs            []string
	password         string
	keyPrefix        string
	readinessTimeout time.Duration

	minSimilarity float64
	maxCandidates int
	cacheSize     int

	defaultQuantity int
	searchTimeout   time.Duration

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithWorkDir sets the directory relative paths in the registry resolve against.
func WithWorkDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.workDir = dir
	})
}

// WithConfigFile sets the registry document. Defaults to dedup.xml.
func WithConfigFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.configFile = path
	})
}

// WithMemory keeps every index in process memory. Contents are lost on Close.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = config.DriverMemory
	})
}

// WithBleve stores each index as a Bleve index at its registry path.
// This is the default.
func WithBleve() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = config.DriverBleve
	})
}

// WithRedis stores every index in one Redis or Valkey instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = config.DriverRedis
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithKeyPrefix sets the Redis key prefix. Default: "dedup:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithReadinessTimeout bounds the wait for Redis at startup. Default: 10s.
func WithReadinessTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.readinessTimeout = d
	})
}

// WithMinSimilarity drops hits whose indexed-field similarity is below s.
func WithMinSimilarity(s float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.minSimilarity = s
	})
}

// WithMaxCandidates caps the stored documents compared per search. Default: 1000.
func WithMaxCandidates(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxCandidates = n
	})
}

// WithSearchCache keeps the last size search results of each index.
// Mutations invalidate the cache. Disabled by default.
func WithSearchCache(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheSize = size
	})
}

// WithDefaultQuantity sets the hit count used when a query gives none. Default: 10.
func WithDefaultQuantity(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultQuantity = n
	})
}

// WithSearchTimeout bounds the fan-out of one query. Zero means no deadline.
func WithSearchTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.searchTimeout = d
	})
}

// WithLogger enables structured logging. Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client operation metrics with reg.
// If not set, no metrics are collected.
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
