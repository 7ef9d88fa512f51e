// Package multipart orchestrates multipart upload sessions: splitting a
// payload into parts, uploading parts across a bounded worker pool, and
// committing or aborting the session.
//
// A session moves Initiated -> PartsInFlight -> Completing and ends in
// exactly one of Committed or Aborted. Once terminal it never changes.
package multipart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	oserrors "gominio/errors"
	"gominio/internal/pool"
)

// API is the set of server calls the orchestrator drives. Implementations
// own signing and per-call retry; UploadPart in particular must be safe to
// re-issue with the same part number and body.
type API interface {
	InitiateUpload(ctx context.Context, bucket, key string, header http.Header) (uploadID string, err error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body []byte) (etag string, err error)
	CompleteUpload(ctx context.Context, bucket, key, uploadID string, parts []Part) (etag string, err error)
	AbortUpload(ctx context.Context, bucket, key, uploadID string) error
}

// Part records one acknowledged part: its number and the checksum the
// server returned for it. Only the final acknowledged checksum per number
// counts.
type Part struct {
	Number int
	ETag   string
	Size   int64
}

// State is the lifecycle state of an upload session.
type State int

// Session states.
const (
	StateInitiated State = iota
	StatePartsInFlight
	StateCompleting
	StateCommitted
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInitiated:
		return "initiated"
	case StatePartsInFlight:
		return "parts-in-flight"
	case StateCompleting:
		return "completing"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Session tracks one in-progress multipart upload.
type Session struct {
	mu          sync.Mutex
	uploadID    string
	state       State
	parts       map[int]Part
	bytesQueued int64
}

// UploadID returns the server-assigned upload id.
func (s *Session) UploadID() string {
	return s.uploadID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BytesQueued returns the total bytes handed to part uploads.
func (s *Session) BytesQueued() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesQueued
}

// CommittedParts returns the acknowledged parts in part-number order.
func (s *Session) CommittedParts() []Part {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]Part, 0, len(s.parts))
	for _, p := range s.parts {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	return parts
}

func (s *Session) committedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.parts)
}

func (s *Session) addQueued(n int64) {
	s.mu.Lock()
	s.bytesQueued += n
	s.mu.Unlock()
}

// commit records a part acknowledgment. A number already committed is
// rejected: retries happen inside the part upload, before commit.
func (s *Session) commit(p Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.parts[p.Number]; dup {
		return fmt.Errorf("part %d committed twice", p.Number)
	}
	s.parts[p.Number] = p
	return nil
}

// setState transitions the session. Terminal states are immutable.
func (s *Session) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCommitted || s.state == StateAborted {
		return
	}
	s.state = next
}

// orderedParts verifies the committed set is exactly {1..n} and returns it
// in order. Completion is only attempted on a verified set.
func (s *Session) orderedParts(n int) ([]Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.parts) != n {
		return nil, fmt.Errorf("expected %d parts, have %d", n, len(s.parts))
	}
	parts := make([]Part, 0, n)
	for num := 1; num <= n; num++ {
		p, ok := s.parts[num]
		if !ok {
			return nil, fmt.Errorf("part %d missing from committed set", num)
		}
		parts = append(parts, p)
	}
	return parts, nil
}

// Result describes a committed upload.
type Result struct {
	UploadID string
	ETag     string
	Size     int64
	Parts    int
}

// Uploader runs multipart upload sessions.
type Uploader struct {
	api         API
	partSize    int64
	concurrency int
	bufs        *pool.BufferPool
	logger      *log.Logger
}

// New creates an Uploader that splits payloads into partSize pieces and
// uploads at most concurrency parts at a time.
func New(a API, partSize int64, concurrency int, logger *log.Logger) *Uploader {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Uploader{
		api:         a,
		partSize:    partSize,
		concurrency: concurrency,
		bufs:        pool.NewBufferPool(partSize),
		logger:      logger,
	}
}

// Upload streams reader into bucket/key through a multipart session.
// header carries content type and user metadata for the initiate call.
//
// On any unrecoverable failure the session ends Aborted with a best-effort
// abort call, except when the caller cancelled before any part committed,
// in which case no abort is issued. Cancellation propagates as the context
// error; every other abort surfaces as *AbortedError.
func (u *Uploader) Upload(
	ctx context.Context,
	bucket, key string,
	reader io.Reader,
	header http.Header,
) (*Result, error) {
	result, _, err := u.UploadSession(ctx, bucket, key, reader, header)
	return result, err
}

// UploadSession is Upload with the session exposed for state inspection.
// The returned session is non-nil whenever the initiate call succeeded.
func (u *Uploader) UploadSession(
	ctx context.Context,
	bucket, key string,
	reader io.Reader,
	header http.Header,
) (*Result, *Session, error) {
	uploadID, err := u.api.InitiateUpload(ctx, bucket, key, header)
	if err != nil {
		return nil, nil, err
	}

	session := &Session{
		uploadID: uploadID,
		state:    StateInitiated,
		parts:    make(map[int]Part),
	}
	u.logger.Debug("multipart session initiated",
		"bucket", bucket, "key", key, "uploadID", uploadID,
		"partSize", humanize.IBytes(uint64(u.partSize)))

	result, err := u.run(ctx, bucket, key, session, reader)
	if err != nil {
		u.finishAborted(ctx, bucket, key, session, err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, session, err
		}
		return nil, session, &AbortedError{Cause: err}
	}

	session.setState(StateCommitted)
	u.logger.Debug("multipart session committed",
		"bucket", bucket, "key", key, "uploadID", uploadID,
		"parts", result.Parts, "size", humanize.IBytes(uint64(result.Size)))
	return result, session, nil
}

// run drives the part uploads and the completion call.
func (u *Uploader) run(
	ctx context.Context,
	bucket, key string,
	session *Session,
	reader io.Reader,
) (*Result, error) {
	numParts, err := u.uploadParts(ctx, bucket, key, session, reader)
	if err != nil {
		return nil, err
	}

	session.setState(StateCompleting)
	parts, err := session.orderedParts(numParts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", oserrors.ErrProtocol, err)
	}

	etag, err := u.api.CompleteUpload(ctx, bucket, key, session.uploadID, parts)
	if err != nil {
		return nil, err
	}

	return &Result{
		UploadID: session.uploadID,
		ETag:     etag,
		Size:     session.BytesQueued(),
		Parts:    numParts,
	}, nil
}

// uploadParts reads the payload sequentially into pooled part buffers and
// uploads them with bounded concurrency. Returns the number of parts read.
func (u *Uploader) uploadParts(
	ctx context.Context,
	bucket, key string,
	session *Session,
	reader io.Reader,
) (int, error) {
	session.setState(StatePartsInFlight)

	g, gctx := errgroup.WithContext(ctx)
	// SetLimit bounds in-flight parts; a full pool queues the producer
	// rather than opening more connections.
	g.SetLimit(u.concurrency)

	numParts := 0
	for {
		if gctx.Err() != nil {
			break
		}

		buf := u.bufs.Get()
		n, readErr := io.ReadFull(reader, buf)
		if readErr == io.EOF {
			u.bufs.Put(buf)
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			u.bufs.Put(buf)
			_ = g.Wait()
			return numParts, fmt.Errorf("read payload: %w", readErr)
		}

		numParts++
		partNumber := numParts
		body := buf[:n]
		session.addQueued(int64(n))

		g.Go(func() error {
			defer u.bufs.Put(buf)
			etag, err := u.api.UploadPart(gctx, bucket, key, session.uploadID, partNumber, body)
			if err != nil {
				return err
			}
			return session.commit(Part{Number: partNumber, ETag: etag, Size: int64(len(body))})
		})

		if readErr == io.ErrUnexpectedEOF {
			// Short read means the payload ended inside this part.
			break
		}
	}

	if err := g.Wait(); err != nil {
		return numParts, err
	}
	if err := ctx.Err(); err != nil {
		return numParts, err
	}
	if numParts == 0 {
		// Zero-byte payloads never reach the orchestrator; treat this as
		// a degenerate single empty part so completion stays valid.
		etag, err := u.api.UploadPart(ctx, bucket, key, session.uploadID, 1, nil)
		if err != nil {
			return 0, err
		}
		if err := session.commit(Part{Number: 1, ETag: etag}); err != nil {
			return 0, err
		}
		numParts = 1
	}
	return numParts, nil
}

// finishAborted drives the session to its Aborted terminal state with a
// best-effort abort call. A cancellation with nothing committed skips the
// abort entirely; otherwise the abort releases server-side part storage.
// An abort failure is reported but does not resurrect the session.
func (u *Uploader) finishAborted(ctx context.Context, bucket, key string, session *Session, cause error) {
	session.setState(StateAborted)

	cancelled := errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded)
	if cancelled && session.committedCount() == 0 {
		u.logger.Debug("skipping abort, no parts committed",
			"bucket", bucket, "key", key, "uploadID", session.uploadID)
		return
	}

	// The caller's context may already be done; abort on a detached
	// context so cleanup still reaches the server.
	abortCtx := ctx
	if abortCtx.Err() != nil {
		abortCtx = context.WithoutCancel(ctx)
	}
	if err := u.api.AbortUpload(abortCtx, bucket, key, session.uploadID); err != nil {
		u.logger.Warn("abort failed, server-side parts may linger",
			"bucket", bucket, "key", key, "uploadID", session.uploadID, "err", err)
	}
}

// AbortedError wraps the cause of an aborted session.
type AbortedError struct {
	Cause error
}

func (e *AbortedError) Error() string {
	return oserrors.ErrSessionAborted.Error() + ": " + e.Cause.Error()
}

// Unwrap exposes both the sentinel and the cause.
func (e *AbortedError) Unwrap() []error {
	return []error{oserrors.ErrSessionAborted, e.Cause}
}
