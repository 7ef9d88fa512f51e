// Package transport issues signed HTTP requests against an S3-compatible
// endpoint and maps HTTP-level failures to typed errors.
//
// A single Client owns one http.Client whose connection pool is reused
// across calls; it is safe for concurrent use. Credentials and the endpoint
// are immutable after construction. The only mutable state is the per-bucket
// region cache, guarded by a mutex.
package transport

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	oserrors "gominio/errors"
	"gominio/internal/signer"
	"gominio/storetypes"
)

// maxErrorBody bounds how much of an error response body is read when
// decoding the server's error document.
const maxErrorBody = 1 << 20

// Config holds the immutable transport configuration.
type Config struct {
	// Endpoint is the host or host:port of the server.
	Endpoint string

	// Secure selects https when true.
	Secure bool

	// Region is the default signing region for buckets whose region has
	// not been discovered.
	Region string

	// PathStyle forces path-style addressing (bucket in the URL path).
	// Virtual-host addressing is used otherwise.
	PathStyle bool

	// Credentials sign every outgoing request.
	Credentials storetypes.Credentials

	// Timeout bounds each request/response exchange, including body reads.
	// Zero means no timeout.
	Timeout time.Duration

	// HTTPClient overrides the default client when non-nil.
	HTTPClient *http.Client

	// Logger receives debug records; nil disables logging.
	Logger *log.Logger
}

// Request describes one S3 call before signing.
type Request struct {
	// Method is the HTTP method.
	Method string

	// Bucket and Key select the resource; both may be empty for
	// service-level calls such as listing buckets.
	Bucket string
	Key    string

	// Query holds subresource and pagination parameters.
	Query url.Values

	// Header holds request headers to send and sign (content type,
	// user metadata).
	Header http.Header

	// Body is the request payload. A nil Body sends no payload.
	// Bodies are buffered so an attempt can be re-issued after a
	// transient failure with an identical payload hash.
	Body []byte

	// Stream, when non-nil, is sent instead of Body with an unsigned
	// payload hash. StreamLength must hold its length. Streamed requests
	// cannot be re-issued by the caller without a fresh Stream.
	Stream       io.Reader
	StreamLength int64
}

// Client sends signed requests to a fixed endpoint.
type Client struct {
	cfg    Config
	scheme string
	host   string
	httpc  *http.Client
	logger *log.Logger

	mu           sync.RWMutex
	bucketRegion map[string]string
}

// New creates a transport client for the configured endpoint.
func New(cfg Config) *Client {
	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}

	var httpc *http.Client
	if cfg.HTTPClient != nil {
		// Copy the caller's client so the redirect override below does
		// not leak into an object the caller shares elsewhere.
		clone := *cfg.HTTPClient
		httpc = &clone
	} else {
		httpc = &http.Client{Timeout: cfg.Timeout}
	}
	// Redirects carry region hints and must be re-signed, so the
	// http.Client must not follow them on its own.
	httpc.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Client{
		cfg:          cfg,
		scheme:       scheme,
		host:         cfg.Endpoint,
		httpc:        httpc,
		logger:       logger,
		bucketRegion: make(map[string]string),
	}
}

// Do signs and sends req, returning the raw response on 2xx. The caller
// owns the response body. Failures are one of ErrConnectionFailed (network),
// *RemoteError (server-reported), or ErrProtocol (undecodable response).
//
// A redirect-class response carrying an x-amz-bucket-region header updates
// the region cache and triggers exactly one re-signed retry.
func (c *Client) Do(ctx context.Context, req *Request) (*http.Response, error) {
	resp, err := c.send(ctx, req)
	if err == nil {
		return resp, nil
	}

	var remote *oserrors.RemoteError
	if asRemote(err, &remote) && remote.BucketRegion != "" && req.Bucket != "" {
		c.setBucketRegion(req.Bucket, remote.BucketRegion)
		c.logger.Debug("re-resolving bucket region",
			"bucket", req.Bucket, "region", remote.BucketRegion)
		if req.Stream != nil {
			// Streamed payloads are consumed; the caller must retry.
			return nil, err
		}
		return c.send(ctx, req)
	}
	return nil, err
}

func (c *Client) send(ctx context.Context, req *Request) (*http.Response, error) {
	u := c.buildURL(req)

	var body io.Reader
	var length int64
	payloadHash := signer.EmptyPayloadHash
	switch {
	case req.Stream != nil:
		body = req.Stream
		length = req.StreamLength
		payloadHash = signer.UnsignedPayload
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
		length = int64(len(req.Body))
		payloadHash = signer.HashPayload(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, oserrors.NewError("transport", err)
	}
	httpReq.ContentLength = length
	for name, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(name, v)
		}
	}
	if length > 0 {
		httpReq.Header.Set("Content-Length", strconv.FormatInt(length, 10))
	}

	// Sign at the last possible moment so the timestamp reflects dispatch
	// time, not request construction time.
	if err := signer.Sign(httpReq, c.cfg.Credentials, c.regionFor(req.Bucket), payloadHash, time.Now()); err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &connError{err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	return nil, c.decodeErrorResponse(resp)
}

// buildURL assembles the resource URL using path-style or virtual-host
// addressing.
func (c *Client) buildURL(req *Request) *url.URL {
	u := &url.URL{Scheme: c.scheme, Host: c.host, Path: "/"}
	if req.Bucket != "" {
		if c.cfg.PathStyle {
			u.Path = "/" + req.Bucket
			if req.Key != "" {
				u.Path += "/" + req.Key
			}
		} else {
			u.Host = req.Bucket + "." + c.host
			if req.Key != "" {
				u.Path = "/" + req.Key
			}
		}
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u
}

// errorDocument is the S3 XML error body.
type errorDocument struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	RequestID string   `xml:"RequestId"`
}

// decodeErrorResponse drains a non-2xx response into a RemoteError.
func (c *Client) decodeErrorResponse(resp *http.Response) error {
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
	}()

	remote := &oserrors.RemoteError{
		StatusCode:   resp.StatusCode,
		BucketRegion: resp.Header.Get("x-amz-bucket-region"),
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && len(data) > 0 {
		var doc errorDocument
		if xml.Unmarshal(data, &doc) == nil {
			remote.Code = doc.Code
			remote.Message = doc.Message
			remote.RequestID = doc.RequestID
		}
	}

	// HEAD responses have no body; synthesize codes from the status.
	if remote.Code == "" {
		switch resp.StatusCode {
		case http.StatusNotFound:
			remote.Code = "NoSuchKey"
		case http.StatusForbidden:
			remote.Code = "AccessDenied"
		case http.StatusMovedPermanently, http.StatusTemporaryRedirect:
			remote.Code = "PermanentRedirect"
		}
	}

	c.logger.Debug("remote error", "status", resp.StatusCode, "code", remote.Code)
	return remote
}

// regionFor returns the cached region for bucket, falling back to the
// configured default.
func (c *Client) regionFor(bucket string) string {
	if bucket != "" {
		c.mu.RLock()
		r, ok := c.bucketRegion[bucket]
		c.mu.RUnlock()
		if ok {
			return r
		}
	}
	if c.cfg.Region != "" {
		return c.cfg.Region
	}
	return "us-east-1"
}

func (c *Client) setBucketRegion(bucket, region string) {
	c.mu.Lock()
	c.bucketRegion[bucket] = region
	c.mu.Unlock()
}

// connError wraps a network-level failure so it matches ErrConnectionFailed.
type connError struct {
	err error
}

func (e *connError) Error() string {
	return "connection failed: " + e.err.Error()
}

func (e *connError) Unwrap() error {
	return oserrors.ErrConnectionFailed
}

func asRemote(err error, target **oserrors.RemoteError) bool {
	re, ok := err.(*oserrors.RemoteError)
	if ok {
		*target = re
	}
	return ok
}

// DrainClose discards and closes a response body so the underlying
// connection can be reused.
func DrainClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
