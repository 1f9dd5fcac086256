package influxdb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-hmip/internal/infrastructure/config"
)

// SourceTag is stamped on every point with the value ApplicationName.
const SourceTag = "source"

// ApplicationName identifies the mirror in the User-Agent and SourceTag.
const ApplicationName = "hmipmirror"

const (
	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second

	// Cloud timestamps carry milliseconds.
	writePrecision = time.Millisecond

	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
)

// Options builds the client options for cfg. Unset batch settings fall back
// to 100 points and a 10s flush. Every point carries SourceTag plus the
// configured extra tags.
func Options(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = fallbackBatchSize
	}
	flush := time.Duration(cfg.FlushInterval) * time.Second
	if flush <= 0 {
		flush = fallbackFlushInterval
	}

	// #nosec G115 -- batch and flush are positive here
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush.Milliseconds())).
		SetPrecision(writePrecision).
		SetApplicationName(ApplicationName)

	opts.AddDefaultTag(SourceTag, ApplicationName)
	keys := make([]string, 0, len(cfg.Tags))
	for k := range cfg.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == SourceTag || cfg.Tags[k] == "" {
			continue
		}
		opts.AddDefaultTag(k, cfg.Tags[k])
	}
	return opts
}

// Client writes mirror telemetry into one bucket.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Writes are queued in the batched write API and never block.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect checks the server answers a ping within ctx (bounded to 10s) and
// opens the write API for cfg.Org and cfg.Bucket.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, Options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:    cfg.Bucket,
		connected: true,
	}
	go c.forwardErrors(c.writeAPI.Errors())
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ok, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errUnhealthy
	}
	return nil
}

// forwardErrors drains the write API error channel until Close.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(fmt.Errorf("influxdb: write to %s: %w", c.bucket, err))
		}
	}
}

// SetOnError registers fn for batch write failures. The error names the
// bucket.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Bucket returns the bucket points are written to.
func (c *Client) Bucket() string { return c.bucket }

// IsConnected is false after Close.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HealthCheck pings the server, giving up after 5s.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(pingCtx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush sends buffered points now. It does nothing after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}

// Close flushes what is buffered and releases the client. Safe on nil.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if wasConnected {
		c.writeAPI.Flush()
		c.client.Close()
	}
	return nil
}
