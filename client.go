package dedup

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/kailas-cloud/dedup/internal/app"
	dbRedis "github.com/kailas-cloud/dedup/internal/db/redis"
	dedupuc "github.com/kailas-cloud/dedup/internal/usecase/dedup"
	healthuc "github.com/kailas-cloud/dedup/internal/usecase/health"
)

// Response is the structured answer of a duplicate query.
type Response = dedupuc.Response

// SchemaDoc describes a registered schema.
type SchemaDoc = dedupuc.SchemaDoc

// HealthReport aggregates backend ping results.
type HealthReport = healthuc.Report

// Client is the dedup entry point.
type Client struct {
	app *app.App
	svc *dedupuc.Service
	obs *observer
}

// New loads the registry and opens every configured index.
// The provided context bounds the Redis readiness wait.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{configFile: "dedup.xml", keyPrefix: "dedup:"}
	for _, o := range opts {
		o.apply(cfg)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, app.Options{
		WorkDir:    cfg.workDir,
		ConfigFile: cfg.configFile,
		Driver:     cfg.driver,
		Redis: dbRedis.Config{
			Addrs:     cfg.addrs,
			Password:  cfg.password,
			KeyPrefix: cfg.keyPrefix,
		},
		ReadinessTimeout: cfg.readinessTimeout,
		MinSimilarity:    cfg.minSimilarity,
		MaxCandidates:    cfg.maxCandidates,
		CacheSize:        cfg.cacheSize,
		DefaultQuantity:  cfg.defaultQuantity,
		SearchTimeout:    cfg.searchTimeout,
		Logger:           cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("dedup: %w", err)
	}
	return &Client{app: a, svc: a.Service, obs: obs}, nil
}

// Close releases every index and connection.
func (c *Client) Close() error {
	return c.app.Close()
}

// Health pings every backend.
func (c *Client) Health(ctx context.Context) HealthReport {
	return c.app.Health.Check(ctx)
}

// Duplicates runs a duplicate query. params carries database, schema, the
// schema field values and optionally quantity and id.
func (c *Client) Duplicates(ctx context.Context, params url.Values) (resp Response, err error) {
	defer func(start time.Time) { c.obs.observe("duplicates", start, err) }(time.Now())
	return c.svc.Duplicates(ctx, params)
}

// RawDuplicates searches each flat record line of body and returns raw hits.
func (c *Client) RawDuplicates(ctx context.Context, database, schema string, body []byte) (hits []string, err error) {
	defer func(start time.Time) { c.obs.observe("raw_duplicates", start, err) }(time.Now())
	return c.svc.RawDuplicates(ctx, database, schema, body)
}

// PutJSON stores a JSON document under id in every index of database.
// It returns the indexes written.
func (c *Client) PutJSON(ctx context.Context, database, schema, id string, body []byte) (written []string, err error) {
	defer func(start time.Time) { c.obs.observe("put_json", start, err) }(time.Now())
	return c.svc.PutJSON(ctx, database, schema, id, body)
}

// PutRaw stores flat record lines in every index of database.
func (c *Client) PutRaw(ctx context.Context, database, schema string, body []byte) (err error) {
	defer func(start time.Time) { c.obs.observe("put_raw", start, err) }(time.Now())
	return c.svc.PutRaw(ctx, database, schema, body)
}

// PutDocs stores flat record lines as-is in the single index called database.
func (c *Client) PutDocs(ctx context.Context, database, schema string, body []byte) (err error) {
	defer func(start time.Time) { c.obs.observe("put_docs", start, err) }(time.Now())
	return c.svc.PutDocs(ctx, database, schema, body)
}

// Delete removes id from every index of each database selector.
func (c *Client) Delete(ctx context.Context, id string, databases ...string) (err error) {
	defer func(start time.Time) { c.obs.observe("delete", start, err) }(time.Now())
	return c.svc.Delete(ctx, databases, id)
}

// Reset empties an index.
func (c *Client) Reset(ctx context.Context, index string) (err error) {
	defer func(start time.Time) { c.obs.observe("reset", start, err) }(time.Now())
	return c.svc.Reset(ctx, index)
}

// Optimize compacts an index.
func (c *Client) Optimize(ctx context.Context, index string) (err error) {
	defer func(start time.Time) { c.obs.observe("optimize", start, err) }(time.Now())
	return c.svc.Optimize(ctx, index)
}

// Test runs the integrity self-test of index against schema.
func (c *Client) Test(ctx context.Context, index, schema string) (ok bool, err error) {
	defer func(start time.Time) { c.obs.observe("test", start, err) }(time.Now())
	return c.svc.Test(ctx, index, schema)
}

// Schema describes a registered schema.
func (c *Client) Schema(name string) (SchemaDoc, error) {
	return c.svc.Schema(name)
}

// Schemas returns the registered schema names.
func (c *Client) Schemas() []string { return c.svc.Schemas() }

// Indexes returns the registered index names.
func (c *Client) Indexes() []string { return c.svc.Indexes() }
