package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "operation only",
			err:  NewError("listBuckets", ErrConnectionFailed),
			want: "gominio.listBuckets: gominio: connection failed",
		},
		{
			name: "with bucket",
			err:  NewBucketError("makeBucket", "bkt", ErrBucketAlreadyExists),
			want: "gominio.makeBucket bucket bkt: gominio: bucket already exists",
		},
		{
			name: "with bucket and key",
			err:  NewObjectError("getObject", "bkt", "a/b.txt", ErrObjectNotFound),
			want: "gominio.getObject bkt/a/b.txt: gominio: object not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_UnwrapChain(t *testing.T) {
	inner := fmt.Errorf("dial tcp: %w", ErrConnectionFailed)
	err := NewObjectError("putObject", "bkt", "key", inner)

	assert.ErrorIs(t, err, ErrConnectionFailed)

	var opErr *Error
	assert.ErrorAs(t, error(err), &opErr)
	assert.Equal(t, "putObject", opErr.Op)
	assert.Equal(t, "bkt", opErr.Bucket)
}

func TestError_WithMessage(t *testing.T) {
	err := NewError("new", ErrInvalidInput).WithMessage("endpoint cannot be empty")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "endpoint cannot be empty")
}

func TestRemoteError_SentinelMapping(t *testing.T) {
	tests := []struct {
		name   string
		remote *RemoteError
		want   error
	}{
		{"no such key", &RemoteError{StatusCode: 404, Code: "NoSuchKey"}, ErrObjectNotFound},
		{"no such upload", &RemoteError{StatusCode: 404, Code: "NoSuchUpload"}, ErrObjectNotFound},
		{"no such bucket", &RemoteError{StatusCode: 404, Code: "NoSuchBucket"}, ErrBucketNotFound},
		{"bucket exists", &RemoteError{StatusCode: 409, Code: "BucketAlreadyOwnedByYou"}, ErrBucketAlreadyExists},
		{"bucket not empty", &RemoteError{StatusCode: 409, Code: "BucketNotEmpty"}, ErrBucketNotEmpty},
		{"access denied", &RemoteError{StatusCode: 403, Code: "AccessDenied"}, ErrAccessDenied},
		{"slow down", &RemoteError{StatusCode: 503, Code: "SlowDown"}, ErrTooManyRequests},
		{"bad signature", &RemoteError{StatusCode: 403, Code: "SignatureDoesNotMatch"}, ErrInvalidCredentials},
		{"bare 404", &RemoteError{StatusCode: 404}, ErrObjectNotFound},
		{"bare 403", &RemoteError{StatusCode: 403}, ErrAccessDenied},
		{"bare 429", &RemoteError{StatusCode: 429}, ErrTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.remote, tt.want)
		})
	}
}

func TestRemoteError_UnknownCodeMapsToNothing(t *testing.T) {
	remote := &RemoteError{StatusCode: 400, Code: "MalformedXML"}
	assert.NotErrorIs(t, remote, ErrObjectNotFound)
	assert.NotErrorIs(t, remote, ErrAccessDenied)
	assert.Contains(t, remote.Error(), "MalformedXML")
}

func TestRemoteError_ThroughOperationWrapper(t *testing.T) {
	remote := &RemoteError{StatusCode: 404, Code: "NoSuchKey", RequestID: "req-9"}
	err := NewObjectError("statObject", "bkt", "key", remote)

	assert.True(t, IsObjectNotFound(err))

	var got *RemoteError
	assert.True(t, errors.As(err, &got))
	assert.Equal(t, "req-9", got.RequestID)
}
