// Object listing: single pages, a pull paginator, and a push stream.

package gominio

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strconv"

	oserrors "gominio/errors"
	"gominio/internal/transport"
	"gominio/internal/validation"
	"gominio/storetypes"
)

// ListObjects returns one page of objects under prefix, in lexicographic
// key order. Use the page's NextContinuationToken (via WithContinuationToken)
// to fetch the next page, or a Paginator to iterate.
//
// With WithDelimiter, keys sharing a prefix up to the delimiter are grouped
// into CommonPrefixes instead of being listed individually.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string, opts ...storetypes.ListOption) (*storetypes.ListPage, error) {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, err
	}

	config := &storetypes.ListOptionConfig{Prefix: prefix}
	for _, opt := range opts {
		opt(config)
	}
	return c.listPage(ctx, bucket, config)
}

func (c *Client) listPage(ctx context.Context, bucket string, config *storetypes.ListOptionConfig) (*storetypes.ListPage, error) {
	query := url.Values{"list-type": {"2"}}
	if config.Prefix != "" {
		query.Set("prefix", config.Prefix)
	}
	if config.Delimiter != "" {
		query.Set("delimiter", config.Delimiter)
	}
	if config.MaxKeys > 0 {
		query.Set("max-keys", strconv.Itoa(config.MaxKeys))
	}
	if config.StartAfter != "" {
		query.Set("start-after", config.StartAfter)
	}
	if config.ContinuationToken != "" {
		query.Set("continuation-token", config.ContinuationToken)
	}

	var doc listBucketResult
	err := c.retrier.Do(ctx, "listObjects", func() error {
		resp, err := c.transport.Do(ctx, &transport.Request{
			Method: http.MethodGet,
			Bucket: bucket,
			Query:  query,
		})
		if err != nil {
			return err
		}
		defer transport.DrainClose(resp)

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return connFailed(err)
		}
		doc = listBucketResult{}
		if err := xml.Unmarshal(data, &doc); err != nil {
			return protocolError("decode object list", err)
		}
		return nil
	})
	if err != nil {
		return nil, oserrors.NewBucketError("listObjects", bucket, err)
	}

	page := &storetypes.ListPage{
		IsTruncated:           doc.IsTruncated,
		NextContinuationToken: doc.NextContinuationToken,
	}
	for _, entry := range doc.Contents {
		page.Objects = append(page.Objects, storetypes.Object{
			Key:          entry.Key,
			Size:         entry.Size,
			LastModified: entry.LastModified,
			ETag:         trimETag(entry.ETag),
			StorageClass: entry.StorageClass,
		})
	}
	for _, cp := range doc.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, cp.Prefix)
	}
	return page, nil
}

// Paginator iterates over a listing page by page. It is not safe for
// concurrent use.
type Paginator struct {
	client *Client
	bucket string
	config storetypes.ListOptionConfig
	done   bool
}

// NewPaginator creates a paginator over bucket/prefix. Passing
// WithContinuationToken resumes a previous iteration from its token.
func (c *Client) NewPaginator(bucket, prefix string, opts ...storetypes.ListOption) *Paginator {
	config := storetypes.ListOptionConfig{Prefix: prefix}
	for _, opt := range opts {
		opt(&config)
	}
	return &Paginator{
		client: c,
		bucket: bucket,
		config: config,
	}
}

// HasMorePages reports whether NextPage can return another page.
func (p *Paginator) HasMorePages() bool {
	return !p.done
}

// NextPage fetches the next page. Calling it after the last page returns
// ErrInvalidInput.
func (p *Paginator) NextPage(ctx context.Context) (*storetypes.ListPage, error) {
	if p.done {
		return nil, oserrors.NewBucketError("listObjects", p.bucket, oserrors.ErrInvalidInput).
			WithMessage("no more pages available")
	}

	page, err := p.client.listPage(ctx, p.bucket, &p.config)
	if err != nil {
		return nil, err
	}

	if page.IsTruncated && page.NextContinuationToken != "" {
		p.config.ContinuationToken = page.NextContinuationToken
		// StartAfter only applies before the first token is issued.
		p.config.StartAfter = ""
	} else {
		p.done = true
	}
	return page, nil
}

// ContinuationToken returns the token that resumes iteration at the next
// page, or "" when iteration is finished or not yet started.
func (p *Paginator) ContinuationToken() string {
	if p.done {
		return ""
	}
	return p.config.ContinuationToken
}

// ObjectResult is one streamed listing entry: an object, or the error that
// ended the stream.
type ObjectResult struct {
	Object storetypes.Object
	Err    error
}

// ListAll streams every object under bucket/prefix over a channel, fetching
// pages as the consumer drains them. The channel closes when the listing is
// exhausted, an error occurs (sent as the final ObjectResult), or ctx is
// cancelled. Cancel ctx to abandon the stream early.
func (c *Client) ListAll(ctx context.Context, bucket, prefix string, opts ...storetypes.ListOption) <-chan ObjectResult {
	out := make(chan ObjectResult)

	go func() {
		defer close(out)

		p := c.NewPaginator(bucket, prefix, opts...)
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				select {
				case out <- ObjectResult{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			for _, obj := range page.Objects {
				select {
				case out <- ObjectResult{Object: obj}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
