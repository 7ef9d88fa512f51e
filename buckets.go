// Bucket operations: create, existence check, list, remove.

package gominio

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"

	oserrors "gominio/errors"
	"gominio/internal/transport"
	"gominio/internal/validation"
	"gominio/storetypes"
)

// MakeBucket creates a new bucket.
// The bucket name must satisfy DNS-safe naming rules; use
// WithBucketRegion to place the bucket in a specific region.
//
// Errors:
//   - ErrInvalidBucketName: if the name violates naming rules
//   - ErrBucketAlreadyExists: if a bucket with this name already exists
//   - ErrAccessDenied: if the credentials lack permission
func (c *Client) MakeBucket(ctx context.Context, bucket string, opts ...storetypes.BucketOption) error {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return err
	}

	config := &storetypes.BucketOptionConfig{}
	for _, opt := range opts {
		opt(config)
	}

	var body []byte
	if config.Region != "" && config.Region != DefaultRegion {
		data, err := xml.Marshal(createBucketConfiguration{LocationConstraint: config.Region})
		if err != nil {
			return oserrors.NewBucketError("makeBucket", bucket, err)
		}
		body = data
	}

	err := c.retrier.Do(ctx, "makeBucket", func() error {
		resp, err := c.transport.Do(ctx, &transport.Request{
			Method: http.MethodPut,
			Bucket: bucket,
			Body:   body,
		})
		if err != nil {
			return err
		}
		transport.DrainClose(resp)
		return nil
	})
	if err != nil {
		return oserrors.NewBucketError("makeBucket", bucket, err)
	}
	return nil
}

// BucketExists checks whether a bucket exists using a HEAD request.
// A missing bucket returns (false, nil); other failures return an error.
func (c *Client) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return false, err
	}

	err := c.retrier.Do(ctx, "bucketExists", func() error {
		resp, err := c.transport.Do(ctx, &transport.Request{
			Method: http.MethodHead,
			Bucket: bucket,
		})
		if err != nil {
			return err
		}
		transport.DrainClose(resp)
		return nil
	})
	if err != nil {
		if oserrors.IsObjectNotFound(err) || oserrors.IsBucketNotFound(err) {
			return false, nil
		}
		return false, oserrors.NewBucketError("bucketExists", bucket, err)
	}
	return true, nil
}

// ListBuckets returns every bucket owned by the authenticated user, in the
// order the server reports them.
func (c *Client) ListBuckets(ctx context.Context) ([]storetypes.BucketInfo, error) {
	var doc listAllMyBucketsResult

	err := c.retrier.Do(ctx, "listBuckets", func() error {
		resp, err := c.transport.Do(ctx, &transport.Request{
			Method: http.MethodGet,
		})
		if err != nil {
			return err
		}
		defer transport.DrainClose(resp)

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return connFailed(err)
		}
		doc = listAllMyBucketsResult{}
		if err := xml.Unmarshal(data, &doc); err != nil {
			return protocolError("decode bucket list", err)
		}
		return nil
	})
	if err != nil {
		return nil, oserrors.NewError("listBuckets", err)
	}

	buckets := make([]storetypes.BucketInfo, 0, len(doc.Buckets.Bucket))
	for _, b := range doc.Buckets.Bucket {
		buckets = append(buckets, storetypes.BucketInfo{
			Name:         b.Name,
			CreationDate: b.CreationDate,
		})
	}
	return buckets, nil
}

// RemoveBucket deletes a bucket. The bucket must be empty.
//
// Errors:
//   - ErrBucketNotFound: if the bucket does not exist
//   - ErrBucketNotEmpty: if the bucket still contains objects
func (c *Client) RemoveBucket(ctx context.Context, bucket string) error {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return err
	}

	err := c.retrier.Do(ctx, "removeBucket", func() error {
		resp, err := c.transport.Do(ctx, &transport.Request{
			Method: http.MethodDelete,
			Bucket: bucket,
		})
		if err != nil {
			return err
		}
		transport.DrainClose(resp)
		return nil
	})
	if err != nil {
		return oserrors.NewBucketError("removeBucket", bucket, err)
	}
	return nil
}
