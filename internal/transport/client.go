package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"
)

// PathPrefix is inserted between the base URL and the command path.
const PathPrefix = "/hmip/"

// DefaultTimeout bounds a single request when Config.Timeout is zero.
const DefaultTimeout = 20 * time.Second

// DefaultTakeTimeout bounds the wait for an admission token.
const DefaultTakeTimeout = 2 * time.Minute

// Admitter gates outbound requests. *admission.Limiter satisfies it.
type Admitter interface {
	TakeBlocking(ctx context.Context, n int, timeout time.Duration) error
}

// Logger defines the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config holds the connection parameters for the REST endpoint.
type Config struct {
	BaseURL         string
	AuthToken       string
	ClientAuthToken string
	APIVersion      string
	AccessPointID   string
	ClientLanguage  string

	// Timeout is the hard upper bound for one request.
	Timeout time.Duration

	// TakeTimeout bounds the wait for an admission token.
	TakeTimeout time.Duration
}

// Result is the uniform outcome of a command.
type Result struct {
	// Status is the HTTP status code, or 0 when no response was received.
	Status int

	// Success is true for 2xx responses.
	Success bool

	// JSON holds the decoded body when it was valid JSON. Nil for empty bodies.
	JSON json.RawMessage

	// Text is the raw response body.
	Text string

	// Err classifies the failure. Nil when Success is true.
	Err error
}

// Decode unmarshals the JSON payload into v.
func (r Result) Decode(v any) error {
	if r.Err != nil {
		return r.Err
	}
	if len(r.JSON) == 0 {
		return fmt.Errorf("transport: empty response body")
	}
	return json.Unmarshal(r.JSON, v)
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter makes every Send wait for one admission token first.
func WithLimiter(a Admitter) Option {
	return func(c *Client) { c.limiter = a }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client issues commands against the HmIP REST endpoint.
//
// Thread Safety:
//   - Send may be called from multiple goroutines.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    Admitter
	logger     Logger
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TakeTimeout <= 0 {
		cfg.TakeTimeout = DefaultTakeTimeout
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "12"
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the full endpoint URL for path.
func (c *Client) URL(path string) string {
	return c.cfg.BaseURL + PathPrefix + strings.TrimPrefix(path, "/")
}

// DefaultHeaders returns the headers sent with every request.
func (c *Client) DefaultHeaders() map[string]string {
	return map[string]string{
		"content-type": "application/json",
		"accept":       "application/json",
		"VERSION":      c.cfg.APIVersion,
		"AUTHTOKEN":    c.cfg.AuthToken,
		"CLIENTAUTH":   c.cfg.ClientAuthToken,
	}
}

// Send posts body as JSON to path. A non-nil headerOverride replaces the
// default headers for this call entirely. A nil body sends no payload.
func (c *Client) Send(ctx context.Context, path string, body any, headerOverride map[string]string) Result {
	if c.limiter != nil {
		if err := c.limiter.TakeBlocking(ctx, 1, c.cfg.TakeTimeout); err != nil {
			c.logger.Warn("admission token not granted", "path", path, "error", err)
			return Result{Err: fmt.Errorf("%w: %w", ErrThrottled, err)}
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return Result{Err: fmt.Errorf("%w: %w", ErrEncode, err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), reader)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: building request: %w", ErrTransport, err)}
	}

	headers := c.DefaultHeaders()
	if headerOverride != nil {
		headers = headerOverride
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("command request failed", "path", path, "error", err)
		return Result{Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Status: resp.StatusCode, Err: fmt.Errorf("%w: reading response: %w", ErrTransport, err)}
	}

	c.logger.Debug("command sent",
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return classify(resp.StatusCode, raw)
}

// classify maps a status code and body to a Result.
func classify(status int, raw []byte) Result {
	res := Result{Status: status, Text: string(raw)}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		res.JSON = json.RawMessage(trimmed)
	}

	switch {
	case status >= 200 && status < 300:
		res.Success = true
	case status == http.StatusTooManyRequests:
		res.Err = fmt.Errorf("%w: status %d", ErrThrottled, status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		res.Err = fmt.Errorf("%w: status %d %s", ErrAuthentication, status, http.StatusText(status))
	default:
		res.Err = fmt.Errorf("%w: status %d %s", ErrRequestFailed, status, http.StatusText(status))
	}
	return res
}

// IsRetryable reports whether err is worth retrying after a backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrTransport)
}

// clientCharacteristics is the body the cloud expects on getCurrentState.
type clientCharacteristics struct {
	Characteristics struct {
		APIVersion            string `json:"apiVersion"`
		ApplicationIdentifier string `json:"applicationIdentifier"`
		ApplicationVersion    string `json:"applicationVersion"`
		DeviceManufacturer    string `json:"deviceManufacturer"`
		DeviceType            string `json:"deviceType"`
		Language              string `json:"language"`
		OSType                string `json:"osType"`
		OSVersion             string `json:"osVersion"`
	} `json:"clientCharacteristics"`
	ID string `json:"id"`
}

// CurrentState fetches the full-state snapshot of the home.
func (c *Client) CurrentState(ctx context.Context) Result {
	var body clientCharacteristics
	body.Characteristics.APIVersion = c.cfg.APIVersion
	body.Characteristics.ApplicationIdentifier = "hmip-mirror"
	body.Characteristics.ApplicationVersion = "1.0"
	body.Characteristics.DeviceManufacturer = "none"
	body.Characteristics.DeviceType = "Computer"
	body.Characteristics.Language = c.cfg.ClientLanguage
	body.Characteristics.OSType = runtime.GOOS
	body.Characteristics.OSVersion = runtime.GOARCH
	body.ID = c.cfg.AccessPointID

	return c.Send(ctx, "home/getCurrentState", body, nil)
}

// FetchSnapshot returns the raw snapshot document or the classified error.
func (c *Client) FetchSnapshot(ctx context.Context) ([]byte, error) {
	res := c.CurrentState(ctx)
	if res.Err != nil {
		return nil, res.Err
	}
	if len(res.JSON) == 0 {
		return nil, fmt.Errorf("%w: empty snapshot", ErrRequestFailed)
	}
	return res.JSON, nil
}
