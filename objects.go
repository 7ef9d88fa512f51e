// Object operations: put, get, stat, remove, copy.

package gominio

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	oserrors "gominio/errors"
	"gominio/internal/transport"
	"gominio/internal/validation"
	"gominio/storetypes"
)

const (
	// DefaultContentType is used when content type detection fails.
	DefaultContentType = "application/octet-stream"

	metaHeaderPrefix = "x-amz-meta-"
)

func connFailed(err error) error {
	return fmt.Errorf("%w: %s", oserrors.ErrConnectionFailed, err)
}

func protocolError(what string, err error) error {
	return fmt.Errorf("%w: %s: %s", oserrors.ErrProtocol, what, err)
}

// PutObject writes the contents of reader to bucket/key. size is a hint:
// pass the exact payload length when known, or a negative value for
// unknown-length streams.
//
// Payloads larger than the configured multipart threshold (and all
// unknown-length streams) are written through a multipart upload session
// with bounded part concurrency; smaller payloads use a single PUT.
// Zero-byte payloads always use a single PUT.
//
// Errors:
//   - ErrInvalidInput / ErrInvalidObjectKey: on invalid arguments
//   - ErrCredentialsMissing: if the client has no credentials
//   - ErrSessionAborted: if a multipart session failed and was aborted
//   - ErrRetriesExhausted: if transient failures outlasted the retry budget
func (c *Client) PutObject(
	ctx context.Context,
	bucket, key string,
	reader io.Reader,
	size int64,
	opts ...storetypes.PutOption,
) (*storetypes.PutResult, error) {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}
	if reader == nil {
		return nil, oserrors.NewObjectError("putObject", bucket, key, oserrors.ErrInvalidInput).
			WithMessage("reader cannot be nil")
	}

	config := c.putConfig(opts)
	if err := validation.ValidateMetadata(config.Metadata); err != nil {
		return nil, oserrors.NewObjectError("putObject", bucket, key, err)
	}

	start := time.Now()

	multipart := !config.DisableMultipart && (size < 0 || size > config.MultipartThreshold)
	if size == 0 {
		multipart = false
	}

	if !multipart {
		return c.putSimple(ctx, bucket, key, reader, size, config, start)
	}
	return c.putMultipart(ctx, bucket, key, reader, config, start)
}

// Put writes byte data to bucket/key. This is a convenience method for
// payloads that already fit in memory.
func (c *Client) Put(ctx context.Context, bucket, key string, data []byte, opts ...storetypes.PutOption) error {
	_, err := c.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), opts...)
	return err
}

// putSimple issues a single signed PUT with a full payload hash. The body
// is buffered so retries re-send identical bytes.
func (c *Client) putSimple(
	ctx context.Context,
	bucket, key string,
	reader io.Reader,
	size int64,
	config *storetypes.PutOptionConfig,
	start time.Time,
) (*storetypes.PutResult, error) {
	var data []byte
	var err error
	if size >= 0 {
		data = make([]byte, size)
		if _, err = io.ReadFull(reader, data); err != nil {
			return nil, oserrors.NewObjectError("putObject", bucket, key, err).
				WithMessage("short read of sized payload")
		}
	} else {
		if data, err = io.ReadAll(reader); err != nil {
			return nil, oserrors.NewObjectError("putObject", bucket, key, err)
		}
	}

	header := c.putHeader(key, data, config)

	var etag string
	err = c.retrier.Do(ctx, "putObject", func() error {
		resp, err := c.transport.Do(ctx, &transport.Request{
			Method: http.MethodPut,
			Bucket: bucket,
			Key:    key,
			Header: header,
			Body:   data,
		})
		if err != nil {
			return err
		}
		etag = trimETag(resp.Header.Get("ETag"))
		transport.DrainClose(resp)
		return nil
	})
	if err != nil {
		return nil, oserrors.NewObjectError("putObject", bucket, key, err)
	}

	return &storetypes.PutResult{
		Key:      key,
		Size:     int64(len(data)),
		ETag:     etag,
		Duration: time.Since(start),
	}, nil
}

// putHeader assembles content type and user metadata headers for a put.
func (c *Client) putHeader(key string, sample []byte, config *storetypes.PutOptionConfig) http.Header {
	header := make(http.Header)

	contentType := config.ContentType
	if contentType == "" {
		contentType = detectContentType(key, sample)
	}
	header.Set("Content-Type", contentType)

	for k, v := range config.Metadata {
		header.Set(metaHeaderPrefix+k, v)
	}
	return header
}

func (c *Client) putConfig(opts []storetypes.PutOption) *storetypes.PutOptionConfig {
	config := &storetypes.PutOptionConfig{
		PartSize:           c.cfg.PartSize,
		Concurrency:        c.cfg.Concurrency,
		MultipartThreshold: c.cfg.MultipartThreshold,
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.PartSize < MinPartSize {
		config.PartSize = MinPartSize
	}
	return config
}

// detectContentType sniffs the payload where a sample is available and
// falls back to extension-based lookup.
func detectContentType(key string, sample []byte) string {
	if len(sample) > 0 {
		if mt := mimetype.Detect(sample); mt != nil && mt.String() != DefaultContentType {
			return mt.String()
		}
	}
	if ext := strings.ToLower(filepath.Ext(key)); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return DefaultContentType
}

// GetObject retrieves an object as a stream. The returned ReadCloser must
// be closed by the caller; the object is never buffered in full.
//
// Errors:
//   - ErrObjectNotFound: if bucket/key does not exist
func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, *storetypes.ObjectInfo, error) {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, nil, err
	}

	var body io.ReadCloser
	var info *storetypes.ObjectInfo
	err := c.retrier.Do(ctx, "getObject", func() error {
		resp, err := c.transport.Do(ctx, &transport.Request{
			Method: http.MethodGet,
			Bucket: bucket,
			Key:    key,
		})
		if err != nil {
			return err
		}
		body = resp.Body
		info = objectInfoFromHeader(key, resp.Header)
		return nil
	})
	if err != nil {
		return nil, nil, oserrors.NewObjectError("getObject", bucket, key, err)
	}
	return body, info, nil
}

// Get retrieves an entire object as a byte slice. Only use this for
// objects that fit in memory; use GetObject or Download otherwise.
func (c *Client) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	body, _, err := c.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, oserrors.NewObjectError("get", bucket, key, connFailed(err))
	}
	return data, nil
}

// Download streams an object into w and returns the number of bytes
// written.
func (c *Client) Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	if w == nil {
		return 0, oserrors.NewObjectError("download", bucket, key, oserrors.ErrInvalidInput).
			WithMessage("writer cannot be nil")
	}

	body, _, err := c.GetObject(ctx, bucket, key)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, oserrors.NewObjectError("download", bucket, key, connFailed(err))
	}
	return n, nil
}

// StatObject retrieves object metadata with a HEAD request, without
// downloading the content.
//
// Errors:
//   - ErrObjectNotFound: if bucket/key does not exist
func (c *Client) StatObject(ctx context.Context, bucket, key string) (*storetypes.ObjectInfo, error) {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}

	var info *storetypes.ObjectInfo
	err := c.retrier.Do(ctx, "statObject", func() error {
		resp, err := c.transport.Do(ctx, &transport.Request{
			Method: http.MethodHead,
			Bucket: bucket,
			Key:    key,
		})
		if err != nil {
			return err
		}
		info = objectInfoFromHeader(key, resp.Header)
		transport.DrainClose(resp)
		return nil
	})
	if err != nil {
		return nil, oserrors.NewObjectError("statObject", bucket, key, err)
	}
	return info, nil
}

// objectInfoFromHeader builds ObjectInfo from response headers, stripping
// the x-amz-meta- prefix from user metadata keys.
func objectInfoFromHeader(key string, header http.Header) *storetypes.ObjectInfo {
	info := &storetypes.ObjectInfo{
		Key:         key,
		ContentType: header.Get("Content-Type"),
		ETag:        trimETag(header.Get("ETag")),
	}
	if cl := header.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil {
			info.Size = size
		}
	}
	if lm := header.Get("Last-Modified"); lm != "" {
		if t, err := time.Parse(http.TimeFormat, lm); err == nil {
			info.LastModified = t
		}
	}
	for name, vals := range header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, metaHeaderPrefix) && len(vals) > 0 {
			if info.Metadata == nil {
				info.Metadata = make(map[string]string)
			}
			info.Metadata[strings.TrimPrefix(lower, metaHeaderPrefix)] = vals[0]
		}
	}
	return info
}

// RemoveObject deletes a single object. Deleting a missing object is not
// an error; the operation is idempotent.
func (c *Client) RemoveObject(ctx context.Context, bucket, key string) error {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return err
	}

	err := c.retrier.Do(ctx, "removeObject", func() error {
		resp, err := c.transport.Do(ctx, &transport.Request{
			Method: http.MethodDelete,
			Bucket: bucket,
			Key:    key,
		})
		if err != nil {
			return err
		}
		transport.DrainClose(resp)
		return nil
	})
	if err != nil {
		return oserrors.NewObjectError("removeObject", bucket, key, err)
	}
	return nil
}

// RemoveObjects deletes up to 1000 objects in one batch call. Each key
// succeeds or fails independently; per-key failures are reported in the
// result rather than as an error.
func (c *Client) RemoveObjects(ctx context.Context, bucket string, keys []string) (*storetypes.RemoveResult, error) {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, oserrors.NewBucketError("removeObjects", bucket, oserrors.ErrInvalidInput).
			WithMessage("keys cannot be empty")
	}
	const maxKeysPerRequest = 1000
	if len(keys) > maxKeysPerRequest {
		return nil, oserrors.NewBucketError("removeObjects", bucket, oserrors.ErrInvalidInput).
			WithMessage("too many keys: maximum is 1000 per request")
	}

	req := deleteObjectsRequest{Quiet: false}
	for _, key := range keys {
		if err := validation.ValidateObjectKey(key); err != nil {
			return nil, err
		}
		req.Objects = append(req.Objects, deleteObjectSpec{Key: key})
	}
	body, err := xml.Marshal(req)
	if err != nil {
		return nil, oserrors.NewBucketError("removeObjects", bucket, err)
	}

	var doc deleteObjectsResult
	err = c.retrier.Do(ctx, "removeObjects", func() error {
		resp, err := c.transport.Do(ctx, &transport.Request{
			Method: http.MethodPost,
			Bucket: bucket,
			Query:  subresourceQuery("delete"),
			Body:   body,
		})
		if err != nil {
			return err
		}
		defer transport.DrainClose(resp)

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return connFailed(err)
		}
		doc = deleteObjectsResult{}
		if err := xml.Unmarshal(data, &doc); err != nil {
			return protocolError("decode delete result", err)
		}
		return nil
	})
	if err != nil {
		return nil, oserrors.NewBucketError("removeObjects", bucket, err)
	}

	result := &storetypes.RemoveResult{}
	for _, d := range doc.Deleted {
		result.Removed = append(result.Removed, d.Key)
	}
	for _, e := range doc.Errors {
		result.Errors = append(result.Errors, storetypes.RemoveError{
			Key:     e.Key,
			Code:    e.Code,
			Message: e.Message,
		})
	}
	return result, nil
}

// CopyObject copies an object server-side; no data passes through the
// client.
func (c *Client) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	for _, v := range []struct {
		bucket, key string
	}{{srcBucket, srcKey}, {dstBucket, dstKey}} {
		if err := validation.ValidateBucketName(v.bucket); err != nil {
			return err
		}
		if err := validation.ValidateObjectKey(v.key); err != nil {
			return err
		}
	}
	if srcBucket == dstBucket && srcKey == dstKey {
		return oserrors.NewObjectError("copyObject", srcBucket, srcKey, oserrors.ErrInvalidInput).
			WithMessage("cannot copy object to itself")
	}

	header := make(http.Header)
	header.Set("x-amz-copy-source", encodeCopySource(srcBucket, srcKey))

	err := c.retrier.Do(ctx, "copyObject", func() error {
		resp, err := c.transport.Do(ctx, &transport.Request{
			Method: http.MethodPut,
			Bucket: dstBucket,
			Key:    dstKey,
			Header: header,
		})
		if err != nil {
			return err
		}
		transport.DrainClose(resp)
		return nil
	})
	if err != nil {
		return oserrors.NewObjectError("copyObject", dstBucket, dstKey, err).
			WithMessage("failed to copy from " + srcBucket + "/" + srcKey)
	}
	return nil
}

// encodeCopySource percent-encodes the copy source path for the
// x-amz-copy-source header. Servers URL-decode the value, so every byte
// outside the unreserved set must be escaped, including literal percent
// signs; only the path separators stay bare.
func encodeCopySource(bucket, key string) string {
	raw := "/" + bucket + "/" + key
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~', c == '/':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// MoveObject copies an object and then deletes the original. The move is
// not atomic: if the delete fails the object exists in both locations.
func (c *Client) MoveObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if err := c.CopyObject(ctx, srcBucket, srcKey, dstBucket, dstKey); err != nil {
		return err
	}
	if err := c.RemoveObject(ctx, srcBucket, srcKey); err != nil {
		return oserrors.NewObjectError("moveObject", srcBucket, srcKey, err).
			WithMessage("failed to delete original object after copy")
	}
	return nil
}
