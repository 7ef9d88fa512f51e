// Functional options for client, put, list, and bucket configuration.

package gominio

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"gominio/storetypes"
)

// WithCredentials sets the access key and secret key used to sign requests.
// Requests issued without credentials fail with ErrCredentialsMissing.
func WithCredentials(accessKey, secretKey string) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.Credentials.AccessKey = accessKey
		c.Credentials.SecretKey = secretKey
	}
}

// WithSessionToken sets an optional STS session token to attach to every
// signed request.
func WithSessionToken(token string) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.Credentials.SessionToken = token
	}
}

// WithRegion sets the default signing region.
// If not specified, DefaultRegion is used until the server advertises a
// different region for a bucket.
func WithRegion(region string) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.Region = region
	}
}

// WithSecure enables TLS for the connection to the endpoint.
// Default is false, matching local MinIO deployments.
func WithSecure(secure bool) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.Secure = secure
	}
}

// WithPathStyle controls bucket addressing. Path-style (the default) puts
// the bucket in the URL path, which S3-compatible services without
// wildcard DNS require. Disable it to use virtual-hosted addressing.
func WithPathStyle(pathStyle bool) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.PathStyle = pathStyle
	}
}

// WithMaxRetries sets the total attempt bound for each network call.
// Default is DefaultMaxRetries. Set to 1 to disable retries.
func WithMaxRetries(maxRetries int) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		if maxRetries > 0 {
			c.MaxRetries = maxRetries
		}
	}
}

// WithTimeout sets the per-request timeout, covering the full exchange
// including body reads. Default is no timeout.
func WithTimeout(timeout time.Duration) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.Timeout = timeout
	}
}

// WithConcurrency sets the maximum number of concurrently uploaded parts
// in multipart sessions. Default is DefaultConcurrency.
func WithConcurrency(concurrency int) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithPartSize sets the multipart part size. Values below the server
// minimum are raised to MinPartSize.
func WithPartSize(partSize int64) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		if partSize > 0 {
			c.PartSize = partSize
		}
	}
}

// WithMultipartThreshold sets the payload size above which PutObject
// switches to a multipart session. Default is DefaultMultipartThreshold.
func WithMultipartThreshold(threshold int64) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		if threshold > 0 {
			c.MultipartThreshold = threshold
		}
	}
}

// WithHTTPClient allows providing a custom HTTP client.
// This gives full control over transport behavior including proxies and
// connection pooling.
func WithHTTPClient(client *http.Client) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.HTTPClient = client
	}
}

// WithLogger sets a logger for debug and warning records. The client is
// silent without one.
func WithLogger(logger *log.Logger) storetypes.Option {
	return func(c *storetypes.ClientConfig) {
		c.Logger = logger
	}
}

// WithContentType sets the content type for a put operation, bypassing
// detection.
func WithContentType(contentType string) storetypes.PutOption {
	return func(c *storetypes.PutOptionConfig) {
		c.ContentType = contentType
	}
}

// WithMetadata sets user metadata for a put operation. Keys are stored
// without the x-amz-meta- wire prefix.
func WithMetadata(metadata map[string]string) storetypes.PutOption {
	return func(c *storetypes.PutOptionConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
}

// WithPutPartSize overrides the client-level part size for one put.
func WithPutPartSize(partSize int64) storetypes.PutOption {
	return func(c *storetypes.PutOptionConfig) {
		if partSize > 0 {
			c.PartSize = partSize
		}
	}
}

// WithPutConcurrency overrides the client-level part concurrency for one put.
func WithPutConcurrency(concurrency int) storetypes.PutOption {
	return func(c *storetypes.PutOptionConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithDisableMultipart forces a single PUT regardless of payload size.
// The payload is then buffered in full, so only use this for payloads that
// fit in memory.
func WithDisableMultipart(disable bool) storetypes.PutOption {
	return func(c *storetypes.PutOptionConfig) {
		c.DisableMultipart = disable
	}
}

// WithDelimiter groups listing results by common prefixes (e.g., "/" for
// directory-style traversal).
func WithDelimiter(delimiter string) storetypes.ListOption {
	return func(c *storetypes.ListOptionConfig) {
		c.Delimiter = delimiter
	}
}

// WithMaxKeys sets the page size for a list operation (1-1000).
func WithMaxKeys(maxKeys int) storetypes.ListOption {
	return func(c *storetypes.ListOptionConfig) {
		if maxKeys > 0 {
			c.MaxKeys = maxKeys
		}
	}
}

// WithStartAfter starts listing after the given key.
func WithStartAfter(startAfter string) storetypes.ListOption {
	return func(c *storetypes.ListOptionConfig) {
		c.StartAfter = startAfter
	}
}

// WithContinuationToken resumes a listing from a previous page's token.
func WithContinuationToken(token string) storetypes.ListOption {
	return func(c *storetypes.ListOptionConfig) {
		c.ContinuationToken = token
	}
}

// WithBucketRegion sets the region constraint for bucket creation.
func WithBucketRegion(region string) storetypes.BucketOption {
	return func(c *storetypes.BucketOptionConfig) {
		c.Region = region
	}
}
