package multipart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oserrors "gominio/errors"
)

const testPartSize = 1 << 20

// mockAPI records the multipart calls and allows failure injection.
type mockAPI struct {
	mu sync.Mutex

	initiated    int
	uploaded     map[int][]byte
	completed    [][]Part
	aborts       int
	abortedIDs   []string
	initiateErr  error
	partErr      error
	partErrOn    int
	completeErr  error
	abortErr     error
	onPartUpload func(partNumber int)
}

func newMockAPI() *mockAPI {
	return &mockAPI{uploaded: make(map[int][]byte)}
}

func (m *mockAPI) InitiateUpload(_ context.Context, _, _ string, _ http.Header) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initiateErr != nil {
		return "", m.initiateErr
	}
	m.initiated++
	return "upload-1", nil
}

func (m *mockAPI) UploadPart(ctx context.Context, _, _, _ string, partNumber int, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	hook := m.onPartUpload
	fail := m.partErr != nil && (m.partErrOn == 0 || m.partErrOn == partNumber)
	m.mu.Unlock()

	if hook != nil {
		hook(partNumber)
	}
	if fail {
		return "", m.partErr
	}

	m.mu.Lock()
	m.uploaded[partNumber] = append([]byte(nil), body...)
	m.mu.Unlock()
	return fmt.Sprintf("etag-%d", partNumber), nil
}

func (m *mockAPI) CompleteUpload(_ context.Context, _, _, _ string, parts []Part) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return "", m.completeErr
	}
	m.completed = append(m.completed, parts)
	return "final-etag", nil
}

func (m *mockAPI) AbortUpload(_ context.Context, _, _, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborts++
	m.abortedIDs = append(m.abortedIDs, uploadID)
	return m.abortErr
}

func (m *mockAPI) abortCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborts
}

func payload(parts int, tail int) []byte {
	return bytes.Repeat([]byte("x"), parts*testPartSize+tail)
}

func TestUpload_CommitsAllParts(t *testing.T) {
	api := newMockAPI()
	u := New(api, testPartSize, 3, nil)

	data := payload(3, 100)
	result, session, err := u.UploadSession(context.Background(), "bkt", "key", bytes.NewReader(data), nil)
	require.NoError(t, err)

	assert.Equal(t, "final-etag", result.ETag)
	assert.Equal(t, 4, result.Parts)
	assert.Equal(t, int64(len(data)), result.Size)
	assert.Equal(t, StateCommitted, session.State())
	assert.Equal(t, 0, api.abortCount())

	// Completion saw exactly parts 1..N in order.
	require.Len(t, api.completed, 1)
	for i, p := range api.completed[0] {
		assert.Equal(t, i+1, p.Number)
	}
}

func TestUpload_ReassemblesPayload(t *testing.T) {
	api := newMockAPI()
	u := New(api, testPartSize, 2, nil)

	data := payload(2, 17)
	_, err := u.Upload(context.Background(), "bkt", "key", bytes.NewReader(data), nil)
	require.NoError(t, err)

	var joined []byte
	for i := 1; i <= len(api.uploaded); i++ {
		joined = append(joined, api.uploaded[i]...)
	}
	assert.Equal(t, data, joined)
}

func TestUpload_ExactMultipleOfPartSize(t *testing.T) {
	api := newMockAPI()
	u := New(api, testPartSize, 2, nil)

	result, err := u.Upload(context.Background(), "bkt", "key", bytes.NewReader(payload(2, 0)), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Parts)
}

func TestUpload_EmptyPayloadSinglePart(t *testing.T) {
	api := newMockAPI()
	u := New(api, testPartSize, 2, nil)

	result, err := u.Upload(context.Background(), "bkt", "key", bytes.NewReader(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Parts)
	assert.Equal(t, int64(0), result.Size)
}

func TestUpload_InitiateFailure(t *testing.T) {
	api := newMockAPI()
	api.initiateErr = errors.New("boom")
	u := New(api, testPartSize, 2, nil)

	_, session, err := u.UploadSession(context.Background(), "bkt", "key", bytes.NewReader(payload(1, 0)), nil)
	assert.Error(t, err)
	assert.Nil(t, session)
	assert.Equal(t, 0, api.abortCount())
}

func TestUpload_PartFailureAbortsOnce(t *testing.T) {
	api := newMockAPI()
	api.partErr = errors.New("part failed")
	api.partErrOn = 2
	u := New(api, testPartSize, 2, nil)

	_, session, err := u.UploadSession(context.Background(), "bkt", "key", bytes.NewReader(payload(3, 0)), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, oserrors.ErrSessionAborted)

	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	assert.EqualError(t, aborted.Cause, "part failed")

	assert.Equal(t, StateAborted, session.State())
	assert.Equal(t, 1, api.abortCount())
	assert.Empty(t, api.completed)
}

func TestUpload_CompleteFailureAborts(t *testing.T) {
	api := newMockAPI()
	api.completeErr = errors.New("complete failed")
	u := New(api, testPartSize, 2, nil)

	_, session, err := u.UploadSession(context.Background(), "bkt", "key", bytes.NewReader(payload(2, 0)), nil)
	assert.ErrorIs(t, err, oserrors.ErrSessionAborted)
	assert.Equal(t, StateAborted, session.State())
	assert.Equal(t, 1, api.abortCount())
}

func TestUpload_CancellationBeforeAnyCommitSkipsAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := newMockAPI()
	u := New(api, testPartSize, 2, nil)

	_, session, err := u.UploadSession(ctx, "bkt", "key", bytes.NewReader(payload(2, 0)), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, oserrors.ErrSessionAborted)

	assert.Equal(t, StateAborted, session.State())
	assert.Equal(t, 0, api.abortCount())
}

func TestUpload_CancellationAfterCommitAbortsExactlyOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	api := newMockAPI()
	api.onPartUpload = func(partNumber int) {
		if partNumber == 2 {
			cancel()
		}
	}
	u := New(api, testPartSize, 1, nil)

	_, session, err := u.UploadSession(ctx, "bkt", "key", bytes.NewReader(payload(4, 0)), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StateAborted, session.State())
	assert.Equal(t, 1, api.abortCount())
}

func TestUpload_AbortFailureDoesNotMaskCause(t *testing.T) {
	api := newMockAPI()
	api.partErr = errors.New("part failed")
	api.abortErr = errors.New("abort failed")
	u := New(api, testPartSize, 2, nil)

	_, session, err := u.UploadSession(context.Background(), "bkt", "key", bytes.NewReader(payload(2, 0)), nil)
	require.Error(t, err)

	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	assert.EqualError(t, aborted.Cause, "part failed")
	assert.Equal(t, StateAborted, session.State())
}

func TestSession_DuplicateCommitRejected(t *testing.T) {
	s := &Session{uploadID: "u", parts: make(map[int]Part)}
	require.NoError(t, s.commit(Part{Number: 1, ETag: "a"}))
	assert.Error(t, s.commit(Part{Number: 1, ETag: "b"}))
}

func TestSession_OrderedPartsVerifiesCompleteness(t *testing.T) {
	s := &Session{uploadID: "u", parts: make(map[int]Part)}
	require.NoError(t, s.commit(Part{Number: 1}))
	require.NoError(t, s.commit(Part{Number: 3}))

	_, err := s.orderedParts(2)
	assert.Error(t, err)

	require.NoError(t, s.commit(Part{Number: 2}))
	parts, err := s.orderedParts(3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, []int{parts[0].Number, parts[1].Number, parts[2].Number})
}

func TestSession_TerminalStateImmutable(t *testing.T) {
	s := &Session{uploadID: "u", parts: make(map[int]Part)}
	s.setState(StateAborted)
	s.setState(StateCompleting)
	assert.Equal(t, StateAborted, s.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "initiated", StateInitiated.String())
	assert.Equal(t, "committed", StateCommitted.String())
	assert.Equal(t, "aborted", StateAborted.String())
}
