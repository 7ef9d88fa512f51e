// Package errors provides error types and handling for object storage operations.
package errors

import (
	"errors"
	"fmt"
)

// Error represents a storage operation error with context about the operation
// that failed. It wraps the underlying transport or server error with
// additional context for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "putObject", "listObjects")
	Op string

	// Bucket is the bucket name (if applicable)
	Bucket string

	// Key is the object key (if applicable)
	Key string

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("gominio.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("gominio.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("gominio.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("gominio.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewBucketError creates a new Error with bucket context.
func NewBucketError(op, bucket string, err error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Err:    err,
	}
}

// NewObjectError creates a new Error with bucket and key context.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}
}

// RemoteError is a failure reported by the server in an S3 error document.
// The status code and the server-assigned code together drive retry
// classification and sentinel mapping.
type RemoteError struct {
	// StatusCode is the HTTP status of the response
	StatusCode int

	// Code is the S3 error code (e.g., "NoSuchKey", "SlowDown")
	Code string

	// Message is the human-readable server message
	Message string

	// BucketRegion is the region hint from the x-amz-bucket-region header,
	// set when the server redirected the request
	BucketRegion string

	// RequestID is the server-assigned request identifier
	RequestID string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error: %s: %s (http %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("remote error: http %d", e.StatusCode)
}

// Unwrap maps well-known server codes onto sentinel errors so callers can
// use errors.Is without inspecting wire codes.
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case "NoSuchKey", "NoSuchUpload":
		return ErrObjectNotFound
	case "NoSuchBucket":
		return ErrBucketNotFound
	case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
		return ErrBucketAlreadyExists
	case "BucketNotEmpty":
		return ErrBucketNotEmpty
	case "AccessDenied":
		return ErrAccessDenied
	case "SlowDown", "TooManyRequests":
		return ErrTooManyRequests
	case "SignatureDoesNotMatch", "InvalidAccessKeyId":
		return ErrInvalidCredentials
	}
	switch e.StatusCode {
	case 404:
		return ErrObjectNotFound
	case 403:
		return ErrAccessDenied
	case 429, 503:
		return ErrTooManyRequests
	}
	return nil
}

// Sentinel errors for common operation failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrCredentialsMissing indicates that no credentials were configured
	ErrCredentialsMissing = errors.New("gominio: credentials missing")

	// ErrConnectionFailed indicates a network-level failure reaching the endpoint
	ErrConnectionFailed = errors.New("gominio: connection failed")

	// ErrProtocol indicates a malformed response from the server
	ErrProtocol = errors.New("gominio: protocol error")

	// ErrRetriesExhausted indicates the retry budget was spent without success
	ErrRetriesExhausted = errors.New("gominio: retries exhausted")

	// ErrSessionAborted indicates a multipart upload session ended in the
	// aborted state
	ErrSessionAborted = errors.New("gominio: upload session aborted")

	// ErrObjectNotFound indicates that the requested object does not exist
	ErrObjectNotFound = errors.New("gominio: object not found")

	// ErrBucketNotFound indicates that the requested bucket does not exist
	ErrBucketNotFound = errors.New("gominio: bucket not found")

	// ErrBucketAlreadyExists indicates that the bucket already exists
	ErrBucketAlreadyExists = errors.New("gominio: bucket already exists")

	// ErrBucketNotEmpty indicates that the bucket is not empty and cannot be deleted
	ErrBucketNotEmpty = errors.New("gominio: bucket not empty")

	// ErrAccessDenied indicates that access to the resource is denied
	ErrAccessDenied = errors.New("gominio: access denied")

	// ErrTooManyRequests indicates the server is throttling the client
	ErrTooManyRequests = errors.New("gominio: too many requests")

	// ErrInvalidCredentials indicates the server rejected the request signature
	ErrInvalidCredentials = errors.New("gominio: invalid credentials")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("gominio: invalid input")

	// ErrInvalidBucketName indicates that the bucket name is invalid
	ErrInvalidBucketName = errors.New("gominio: invalid bucket name")

	// ErrInvalidObjectKey indicates that the object key is invalid
	ErrInvalidObjectKey = errors.New("gominio: invalid object key")
)

// IsObjectNotFound checks if an error indicates that an object was not found.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsBucketNotFound checks if an error indicates that a bucket was not found.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsAccessDenied checks if an error indicates access was denied.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsRetriesExhausted checks if an error indicates the retry budget was spent.
func IsRetriesExhausted(err error) bool {
	return errors.Is(err, ErrRetriesExhausted)
}
