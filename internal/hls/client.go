package hls

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultUserAgent is sent when no user agent is configured. Some CDNs refuse
// requests without a browser-like one.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ClientConfig holds configuration for the manifest/segment client
type ClientConfig struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	Debug     bool
	Logger    *slog.Logger
}

// DefaultClientConfig returns defaults for the HLS client
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:   30 * time.Second,
		UserAgent: DefaultUserAgent,
	}
}

// Client fetches manifests and segments. It never retries: a failed manifest
// load is reported to the caller as is.
type Client struct {
	resty  *resty.Client
	logger *slog.Logger
}

// NewClient creates a new client with the given configuration
func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	restyClient := resty.New().
		SetTimeout(config.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", config.UserAgent).
		SetHeader("Accept", "*/*").
		SetHeaders(config.Headers)

	client := &Client{
		resty:  restyClient,
		logger: config.Logger,
	}

	if config.Debug {
		restyClient.OnAfterResponse(func(c *resty.Client, r *resty.Response) error {
			client.logger.Debug("HLS response",
				"status", r.StatusCode(),
				"url", r.Request.URL,
				"bytes", len(r.Body()),
				"time", r.Time(),
			)
			return nil
		})
	}

	return client
}

// Fetch performs a GET request and returns the body.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.resty.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET request failed for %s: %w", url, err)
	}

	if resp.StatusCode() >= 400 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode()}
	}

	return resp.Body(), nil
}

// StatusError is returned for HTTP error responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d for %s", e.StatusCode, e.URL)
}
