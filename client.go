// Package gominio provides client initialization and configuration.
//
// The Client provides a high-level interface for S3-compatible object
// storage servers such as MinIO, supporting bucket and object operations,
// multipart uploads, and paginated listing with configurable retry and
// concurrency behavior.
package gominio

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"gominio/errors"
	"gominio/internal/retry"
	"gominio/internal/transport"
	"gominio/storetypes"
)

// Defaults applied when the corresponding option is not set.
const (
	// DefaultMaxRetries is the total attempt bound per network call.
	DefaultMaxRetries = 3

	// DefaultConcurrency is the number of parts uploaded in parallel.
	DefaultConcurrency = 5

	// DefaultPartSize is the multipart part size (16 MiB).
	DefaultPartSize = 16 * 1024 * 1024

	// DefaultMultipartThreshold is the size above which PutObject switches
	// to a multipart session (16 MiB).
	DefaultMultipartThreshold = 16 * 1024 * 1024

	// MinPartSize is the server-imposed minimum for every part except the
	// last (5 MiB).
	MinPartSize = 5 * 1024 * 1024

	// DefaultRegion is the signing region used when none is configured or
	// discovered.
	DefaultRegion = "us-east-1"
)

// Client is a client for one S3-compatible endpoint. It is safe for use by
// multiple concurrent callers; credentials and endpoint configuration are
// immutable after construction.
type Client struct {
	cfg       storetypes.ClientConfig
	endpoint  string
	transport *transport.Client
	retrier   *retry.Controller
	logger    *log.Logger
}

// New creates a client for the given endpoint ("host" or "host:port").
// Credentials and behavior are supplied through functional options.
//
// Example:
//
//	client, err := gominio.New("localhost:9000",
//	    gominio.WithCredentials("minioadmin", "minioadmin"),
//	    gominio.WithRegion("us-east-1"),
//	)
func New(endpoint string, opts ...storetypes.Option) (*Client, error) {
	endpoint = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://"), "/")
	if endpoint == "" {
		return nil, errors.NewError("new", errors.ErrInvalidInput).
			WithMessage("endpoint cannot be empty")
	}

	cfg := storetypes.ClientConfig{
		Region:             DefaultRegion,
		PathStyle:          true,
		MaxRetries:         DefaultMaxRetries,
		Concurrency:        DefaultConcurrency,
		PartSize:           DefaultPartSize,
		MultipartThreshold: DefaultMultipartThreshold,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.PartSize < MinPartSize {
		cfg.PartSize = MinPartSize
	}
	if cfg.MultipartThreshold < cfg.PartSize {
		cfg.MultipartThreshold = cfg.PartSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	tc := transport.New(transport.Config{
		Endpoint:    endpoint,
		Secure:      cfg.Secure,
		Region:      cfg.Region,
		PathStyle:   cfg.PathStyle,
		Credentials: cfg.Credentials,
		Timeout:     cfg.Timeout,
		HTTPClient:  cfg.HTTPClient,
		Logger:      logger,
	})

	return &Client{
		cfg:       cfg,
		endpoint:  endpoint,
		transport: tc,
		retrier:   retry.New(cfg.MaxRetries, logger),
		logger:    logger,
	}, nil
}

// Endpoint returns the configured endpoint host.
func (c *Client) Endpoint() string {
	return c.endpoint
}
