package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oserrors "gominio/errors"
	"gominio/storetypes"
)

var testCreds = storetypes.Credentials{AccessKey: "test-access", SecretKey: "test-secret"}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(Config{
		Endpoint:    strings.TrimPrefix(srv.URL, "http://"),
		Region:      "us-east-1",
		PathStyle:   true,
		Credentials: testCreds,
	})
}

func TestDo_SignsRequests(t *testing.T) {
	var captured http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Bucket: "bkt", Key: "key"})
	require.NoError(t, err)
	DrainClose(resp)

	auth := captured.Get("Authorization")
	assert.Contains(t, auth, "AWS4-HMAC-SHA256 Credential=test-access/")
	assert.Contains(t, auth, "/us-east-1/s3/aws4_request")
	assert.NotEmpty(t, captured.Get("X-Amz-Date"))
	assert.NotEmpty(t, captured.Get("X-Amz-Content-Sha256"))
}

func TestDo_PathStyleURL(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Bucket: "bkt", Key: "a/b.txt"})
	require.NoError(t, err)
	DrainClose(resp)
	assert.Equal(t, "/bkt/a/b.txt", path)
}

func TestDo_BodyHashAndLength(t *testing.T) {
	var hash, length string
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash = r.Header.Get("X-Amz-Content-Sha256")
		length = r.Header.Get("Content-Length")
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Do(context.Background(), &Request{
		Method: http.MethodPut,
		Bucket: "bkt",
		Key:    "key",
		Body:   []byte("payload"),
	})
	require.NoError(t, err)
	DrainClose(resp)

	assert.Equal(t, []byte("payload"), received)
	assert.Equal(t, "7", length)
	assert.Len(t, hash, 64)
	assert.NotEqual(t, "UNSIGNED-PAYLOAD", hash)
}

func TestDo_StreamUsesUnsignedPayload(t *testing.T) {
	var hash string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash = r.Header.Get("X-Amz-Content-Sha256")
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Do(context.Background(), &Request{
		Method:       http.MethodPut,
		Bucket:       "bkt",
		Key:          "key",
		Stream:       strings.NewReader("streamed"),
		StreamLength: 8,
	})
	require.NoError(t, err)
	DrainClose(resp)
	assert.Equal(t, "UNSIGNED-PAYLOAD", hash)
}

func TestDo_DecodesErrorDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message><RequestId>req-1</RequestId></Error>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Bucket: "bkt", Key: "key"})
	require.Error(t, err)

	var remote *oserrors.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusNotFound, remote.StatusCode)
	assert.Equal(t, "NoSuchKey", remote.Code)
	assert.Equal(t, "req-1", remote.RequestID)
	assert.ErrorIs(t, err, oserrors.ErrObjectNotFound)
}

func TestDo_SynthesizesCodeForHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Do(context.Background(), &Request{Method: http.MethodHead, Bucket: "bkt", Key: "key"})
	assert.ErrorIs(t, err, oserrors.ErrObjectNotFound)
}

func TestDo_RegionRedirectRetriesOnce(t *testing.T) {
	attempts := 0
	var scopes []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		scopes = append(scopes, r.Header.Get("Authorization"))
		if attempts == 1 {
			w.Header().Set("x-amz-bucket-region", "eu-west-1")
			w.WriteHeader(http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Bucket: "bkt", Key: "key"})
	require.NoError(t, err)
	DrainClose(resp)

	require.Equal(t, 2, attempts)
	assert.Contains(t, scopes[0], "/us-east-1/")
	assert.Contains(t, scopes[1], "/eu-west-1/")

	// The discovered region sticks for subsequent calls.
	resp, err = c.Do(context.Background(), &Request{Method: http.MethodGet, Bucket: "bkt", Key: "key"})
	require.NoError(t, err)
	DrainClose(resp)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, scopes[2], "/eu-west-1/")
}

func TestNew_DoesNotMutateCallerHTTPClient(t *testing.T) {
	shared := &http.Client{}
	c := New(Config{
		Endpoint:    "localhost:9000",
		Region:      "us-east-1",
		Credentials: testCreds,
		HTTPClient:  shared,
	})

	assert.Nil(t, shared.CheckRedirect)
	assert.NotSame(t, shared, c.httpc)
	require.NotNil(t, c.httpc.CheckRedirect)
}

func TestDo_ConnectionFailure(t *testing.T) {
	c := New(Config{
		Endpoint:    "127.0.0.1:1",
		Region:      "us-east-1",
		PathStyle:   true,
		Credentials: testCreds,
	})

	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Bucket: "bkt"})
	assert.ErrorIs(t, err, oserrors.ErrConnectionFailed)
}

func TestDo_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, srv)
	_, err := c.Do(ctx, &Request{Method: http.MethodGet, Bucket: "bkt"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_MissingCredentials(t *testing.T) {
	c := New(Config{Endpoint: "localhost:9000", Region: "us-east-1", PathStyle: true})

	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Bucket: "bkt"})
	assert.ErrorIs(t, err, oserrors.ErrCredentialsMissing)
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name      string
		pathStyle bool
		bucket    string
		key       string
		query     url.Values
		wantHost  string
		wantPath  string
	}{
		{"service root", true, "", "", nil, "endpoint:9000", "/"},
		{"path style bucket", true, "bkt", "", nil, "endpoint:9000", "/bkt"},
		{"path style object", true, "bkt", "a/b", nil, "endpoint:9000", "/bkt/a/b"},
		{"virtual host object", false, "bkt", "a/b", nil, "bkt.endpoint:9000", "/a/b"},
		{"virtual host bucket", false, "bkt", "", nil, "bkt.endpoint:9000", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Config{Endpoint: "endpoint:9000", PathStyle: tt.pathStyle, Credentials: testCreds})
			u := c.buildURL(&Request{Bucket: tt.bucket, Key: tt.key, Query: tt.query})
			assert.Equal(t, tt.wantHost, u.Host)
			assert.Equal(t, tt.wantPath, u.Path)
		})
	}
}
