// Multipart upload wiring: the server-call adapter the orchestrator drives,
// and the client-side entry point that routes large puts through it.

package gominio

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	oserrors "gominio/errors"
	"gominio/internal/retry"
	"gominio/internal/transfer/multipart"
	"gominio/internal/transport"
	"gominio/storetypes"
)

// putMultipart streams reader into bucket/key through a multipart session.
func (c *Client) putMultipart(
	ctx context.Context,
	bucket, key string,
	reader io.Reader,
	config *storetypes.PutOptionConfig,
	start time.Time,
) (*storetypes.PutResult, error) {
	concurrency := config.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	api := &multipartAPI{
		transport: c.transport,
		retrier:   c.retrier,
		logger:    c.logger,
	}
	uploader := multipart.New(api, config.PartSize, concurrency, c.logger)

	result, err := uploader.Upload(ctx, bucket, key, reader, c.putHeader(key, nil, config))
	if err != nil {
		return nil, oserrors.NewObjectError("putObject", bucket, key, err)
	}

	return &storetypes.PutResult{
		Key:       key,
		Size:      result.Size,
		ETag:      result.ETag,
		Multipart: true,
		Duration:  time.Since(start),
	}, nil
}

// multipartAPI issues the four multipart server calls over the signed
// transport, with per-call retry. The orchestrator never talks to the wire
// directly.
type multipartAPI struct {
	transport *transport.Client
	retrier   *retry.Controller
	logger    *log.Logger
}

var _ multipart.API = (*multipartAPI)(nil)

func (a *multipartAPI) InitiateUpload(ctx context.Context, bucket, key string, header http.Header) (string, error) {
	var doc initiateMultipartUploadResult
	err := a.retrier.Do(ctx, "initiateUpload", func() error {
		resp, err := a.transport.Do(ctx, &transport.Request{
			Method: http.MethodPost,
			Bucket: bucket,
			Key:    key,
			Query:  subresourceQuery("uploads"),
			Header: header,
		})
		if err != nil {
			return err
		}
		defer transport.DrainClose(resp)

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return connFailed(err)
		}
		doc = initiateMultipartUploadResult{}
		if err := xml.Unmarshal(data, &doc); err != nil {
			return protocolError("decode initiate result", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if doc.UploadID == "" {
		return "", protocolError("decode initiate result", errMissingUploadID)
	}
	return doc.UploadID, nil
}

func (a *multipartAPI) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body []byte) (string, error) {
	query := url.Values{
		"partNumber": {strconv.Itoa(partNumber)},
		"uploadId":   {uploadID},
	}

	var etag string
	err := a.retrier.Do(ctx, "uploadPart", func() error {
		resp, err := a.transport.Do(ctx, &transport.Request{
			Method: http.MethodPut,
			Bucket: bucket,
			Key:    key,
			Query:  query,
			Body:   body,
		})
		if err != nil {
			return err
		}
		etag = trimETag(resp.Header.Get("ETag"))
		transport.DrainClose(resp)
		return nil
	})
	if err != nil {
		return "", err
	}
	return etag, nil
}

func (a *multipartAPI) CompleteUpload(ctx context.Context, bucket, key, uploadID string, parts []multipart.Part) (string, error) {
	payload := completeMultipartUpload{Parts: make([]completePart, 0, len(parts))}
	for _, p := range parts {
		payload.Parts = append(payload.Parts, completePart{PartNumber: p.Number, ETag: p.ETag})
	}
	body, err := xml.Marshal(payload)
	if err != nil {
		return "", err
	}

	expectedETag, expectedKnown := assembledETag(parts)

	attempt := 0
	var etag string
	err = a.retrier.Do(ctx, "completeUpload", func() error {
		attempt++
		if attempt > 1 && expectedKnown {
			// The previous attempt may have committed server-side before the
			// response was lost. Re-issuing complete on a committed upload
			// fails with NoSuchUpload, so check the key first — but only an
			// object carrying this session's assembled ETag counts: the key
			// may still hold a pre-existing object that the upload was about
			// to overwrite.
			if e, ok := a.completedETag(ctx, bucket, key); ok && e == expectedETag {
				a.logger.Debug("complete already applied",
					"bucket", bucket, "key", key, "etag", e)
				etag = e
				return nil
			}
		}

		resp, err := a.transport.Do(ctx, &transport.Request{
			Method: http.MethodPost,
			Bucket: bucket,
			Key:    key,
			Query:  url.Values{"uploadId": {uploadID}},
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
		return decodeCompleteResponse(data, resp.StatusCode, &etag)
	})
	if err != nil {
		return "", err
	}
	return etag, nil
}

// completedETag returns the entity tag of the object currently stored at
// bucket/key, if any.
func (a *multipartAPI) completedETag(ctx context.Context, bucket, key string) (string, bool) {
	resp, err := a.transport.Do(ctx, &transport.Request{
		Method: http.MethodHead,
		Bucket: bucket,
		Key:    key,
	})
	if err != nil {
		return "", false
	}
	etag := trimETag(resp.Header.Get("ETag"))
	transport.DrainClose(resp)
	return etag, true
}

// assembledETag computes the entity tag a completed multipart upload
// receives: the MD5 of the concatenated binary part MD5s, suffixed with
// the part count. Reports false when a part ETag is not an MD5 digest
// (encrypted uploads, for one), in which case a committed object cannot
// be recognized by its tag.
func assembledETag(parts []multipart.Part) (string, bool) {
	h := md5.New()
	for _, p := range parts {
		raw, err := hex.DecodeString(p.ETag)
		if err != nil || len(raw) != md5.Size {
			return "", false
		}
		h.Write(raw)
	}
	return hex.EncodeToString(h.Sum(nil)) + "-" + strconv.Itoa(len(parts)), true
}

// decodeCompleteResponse handles the complete-upload quirk where the server
// reports a failure inside a 200 response body.
func decodeCompleteResponse(data []byte, statusCode int, etag *string) error {
	var doc completeMultipartUploadResult
	if err := xml.Unmarshal(data, &doc); err == nil && doc.ETag != "" {
		*etag = trimETag(doc.ETag)
		return nil
	}

	var errDoc struct {
		XMLName xml.Name `xml:"Error"`
		Code    string   `xml:"Code"`
		Message string   `xml:"Message"`
	}
	if err := xml.Unmarshal(data, &errDoc); err == nil && errDoc.Code != "" {
		return &oserrors.RemoteError{
			StatusCode: statusCode,
			Code:       errDoc.Code,
			Message:    errDoc.Message,
		}
	}
	return protocolError("decode complete result", errUnrecognizedBody)
}

func (a *multipartAPI) AbortUpload(ctx context.Context, bucket, key, uploadID string) error {
	err := a.retrier.Do(ctx, "abortUpload", func() error {
		resp, err := a.transport.Do(ctx, &transport.Request{
			Method: http.MethodDelete,
			Bucket: bucket,
			Key:    key,
			Query:  url.Values{"uploadId": {uploadID}},
		})
		if err != nil {
			return err
		}
		transport.DrainClose(resp)
		return nil
	})
	// An upload that no longer exists is already cleaned up.
	if err != nil && !isNoSuchUpload(err) {
		return err
	}
	return nil
}

func isNoSuchUpload(err error) bool {
	var remote *oserrors.RemoteError
	return errors.As(err, &remote) && remote.Code == "NoSuchUpload"
}

var (
	errMissingUploadID  = errors.New("no upload id in response")
	errUnrecognizedBody = errors.New("unrecognized response body")
)
