// Package storetypes provides shared type definitions for the gominio module.
package storetypes

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Credentials holds the access credentials used to sign requests.
// Credentials are immutable for the lifetime of a client instance.
type Credentials struct {
	// AccessKey is the access key ID
	AccessKey string

	// SecretKey is the secret access key
	SecretKey string

	// SessionToken is an optional STS session token
	SessionToken string
}

// IsZero reports whether no credentials have been supplied.
func (c Credentials) IsZero() bool {
	return c.AccessKey == "" && c.SecretKey == ""
}

// BucketInfo describes a bucket returned by a list-buckets call.
// The client holds no authoritative local copy of buckets; this is
// transient metadata from the remote server.
type BucketInfo struct {
	// Name is the bucket name
	Name string

	// CreationDate is when the bucket was created
	CreationDate time.Time
}

// Object represents a stored object with its basic metadata.
type Object struct {
	// Key is the object key (path within the bucket)
	Key string

	// Size is the object size in bytes
	Size int64

	// LastModified is when the object was last modified
	LastModified time.Time

	// ETag is the entity tag for the object
	ETag string

	// StorageClass is the storage class reported by the server
	StorageClass string
}

// IsDir reports whether the object is a directory marker (key ends in "/").
func (o Object) IsDir() bool {
	return len(o.Key) > 0 && o.Key[len(o.Key)-1] == '/'
}

// ObjectInfo contains detailed metadata about an object as returned
// by a stat (HEAD) call.
type ObjectInfo struct {
	// Key is the object key
	Key string

	// ContentType is the MIME type of the object
	ContentType string

	// Size is the size of the object in bytes
	Size int64

	// LastModified is when the object was last modified
	LastModified time.Time

	// ETag is the entity tag for the object
	ETag string

	// Metadata contains user-defined metadata, keys without the
	// x-amz-meta- wire prefix
	Metadata map[string]string
}

// PutResult contains the result of a put operation.
type PutResult struct {
	// Key is the object key that was written
	Key string

	// Size is the number of bytes written
	Size int64

	// ETag is the entity tag returned by the server
	ETag string

	// Multipart reports whether the object was written through a
	// multipart upload session
	Multipart bool

	// Duration is how long the operation took
	Duration time.Duration
}

// ListPage is one page of a paginated object listing.
type ListPage struct {
	// Objects contains the listed objects in key order
	Objects []Object

	// CommonPrefixes contains grouped key prefixes when a delimiter was set
	CommonPrefixes []string

	// IsTruncated indicates more pages are available
	IsTruncated bool

	// NextContinuationToken is the opaque cursor for the next page
	NextContinuationToken string
}

// RemoveResult contains the result of a batch remove operation.
type RemoveResult struct {
	// Removed contains the keys that were removed
	Removed []string

	// Errors contains per-key failures reported by the server
	Errors []RemoveError
}

// RemoveError is a per-key failure from a batch remove.
type RemoveError struct {
	// Key is the object key that failed to delete
	Key string

	// Code is the server error code
	Code string

	// Message is the server error message
	Message string
}

// Configuration types for functional options

// ClientConfig holds configuration for the client.
type ClientConfig struct {
	Credentials        Credentials
	Region             string
	Secure             bool
	PathStyle          bool
	MaxRetries         int
	Timeout            time.Duration
	Concurrency        int
	PartSize           int64
	MultipartThreshold int64
	HTTPClient         *http.Client
	Logger             *log.Logger
}

// PutOptionConfig holds configuration for put operations via functional options.
type PutOptionConfig struct {
	ContentType        string
	Metadata           map[string]string
	PartSize           int64
	Concurrency        int
	DisableMultipart   bool
	MultipartThreshold int64
}

// ListOptionConfig holds configuration for list operations via functional options.
type ListOptionConfig struct {
	Prefix            string
	Delimiter         string
	MaxKeys           int
	StartAfter        string
	ContinuationToken string
}

// BucketOptionConfig holds configuration for bucket operations via functional options.
type BucketOptionConfig struct {
	Region string
}

// Option is a functional option for configuring the client.
type (
	Option func(*ClientConfig)
	// PutOption is a functional option for configuring put operations.
	PutOption func(*PutOptionConfig)
	// ListOption is a functional option for configuring list operations.
	ListOption func(*ListOptionConfig)
	// BucketOption is a functional option for configuring bucket operations.
	BucketOption func(*BucketOptionConfig)
)
