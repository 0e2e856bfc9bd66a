// Package attachments stores image payloads and serves them back as a
// progress-reporting stream. Payloads are staged through a scoped temp file
// before the blob is committed, and staging space is always released
// deterministically, including on cancellation.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/pebble"

	"meshchat/pkg/logger"
	"meshchat/pkg/models"
	"meshchat/pkg/telemetry"
	"meshchat/pkg/utils"
)

// ErrorKind classifies attachment pipeline failures. They surface to the
// caller because they block a user-visible send.
type ErrorKind int

const (
	KindThumbnailCreate ErrorKind = iota
	KindCreate
	KindWrite
	KindCleanup
)

func (k ErrorKind) String() string {
	switch k {
	case KindThumbnailCreate:
		return "thumbnail_create"
	case KindCreate:
		return "create"
	case KindWrite:
		return "write"
	case KindCleanup:
		return "cleanup"
	}
	return "unknown"
}

// Error is a typed attachment failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("attachment %s failed: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// EventKind tags fetch stream events.
type EventKind int

const (
	EventProgress EventKind = iota
	EventCompleted
	EventDeleted
)

// Event is one element of a fetch stream.
type Event struct {
	Kind     EventKind
	Fetched  int64
	Total    int64
	Data     []byte
	Metadata map[string]string
}

const fetchChunkSize = 64 << 10

// Store persists attachment blobs and metadata.
type Store struct {
	db       *pebble.DB
	staging  string
	maxBytes int64
}

// Open opens (or creates) the attachment store at path, staging uploads in
// stagingDir.
func Open(path, stagingDir string) (*Store, error) {
	if err := os.MkdirAll(stagingDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open attachment store at %s: %w", path, err)
	}
	return &Store{db: db, staging: stagingDir}, nil
}

// SetMaxBytes bounds the accepted payload size; zero means unbounded.
func (s *Store) SetMaxBytes(n int64) { s.maxBytes = n }

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func blobKey(token string) []byte { return []byte("blob:" + token) }
func metaKey(token string) []byte { return []byte("meta:" + token) }

// Store stages the payload to a temp file, then commits blob and metadata
// under a fresh token. Cancellation mid-copy releases the staging file and
// returns ctx.Err().
func (s *Store) Store(ctx context.Context, r io.Reader, meta map[string]string) (models.AttachmentToken, error) {
	var zero models.AttachmentToken

	tmp, err := os.CreateTemp(s.staging, "attachment-*")
	if err != nil {
		return zero, &Error{Kind: KindCreate, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		tmp.Close()
		if err := os.Remove(tmpName); err != nil && !committed {
			logger.Error("attachment_staging_cleanup_failed", "path", tmpName, "error", err)
		}
	}()

	size, err := copyWithContext(ctx, tmp, r, s.maxBytes)
	if err != nil {
		return zero, err
	}
	if err := tmp.Sync(); err != nil {
		return zero, &Error{Kind: KindWrite, Err: err}
	}
	data, err := os.ReadFile(tmpName)
	if err != nil {
		return zero, &Error{Kind: KindWrite, Err: err}
	}

	token := utils.GenAttachmentToken()
	batch := s.db.NewBatch()
	if err := batch.Set(blobKey(token), data, nil); err != nil {
		batch.Close()
		return zero, &Error{Kind: KindWrite, Err: err}
	}
	metaDoc, err := encodeMeta(meta)
	if err != nil {
		batch.Close()
		return zero, &Error{Kind: KindWrite, Err: err}
	}
	if err := batch.Set(metaKey(token), metaDoc, nil); err != nil {
		batch.Close()
		return zero, &Error{Kind: KindWrite, Err: err}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return zero, &Error{Kind: KindWrite, Err: err}
	}
	committed = true
	telemetry.AttachmentBytesStored.Add(float64(size))
	logger.Info("attachment_stored", "token", token, "bytes", size)
	return models.AttachmentToken{Token: token, Metadata: meta}, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, limit int64) (int64, error) {
	buf := make([]byte, fetchChunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, &Error{Kind: KindWrite, Err: werr}
			}
			written += int64(n)
			if limit > 0 && written > limit {
				return written, &Error{Kind: KindWrite, Err: fmt.Errorf("payload exceeds %d byte limit", limit)}
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, &Error{Kind: KindWrite, Err: rerr}
		}
	}
}

// Fetch streams the attachment back: zero or more Progress events followed
// by Completed, or a single Deleted event when the token no longer resolves.
// The channel closes when the stream ends or ctx is canceled.
func (s *Store) Fetch(ctx context.Context, token string) <-chan Event {
	ch := make(chan Event, 1)
	go func() {
		defer close(ch)

		data, ok := s.getBlob(token)
		if !ok {
			emit(ctx, ch, Event{Kind: EventDeleted})
			return
		}
		meta := s.getMeta(token)

		total := int64(len(data))
		var fetched int64
		for fetched < total {
			if ctx.Err() != nil {
				return
			}
			step := int64(fetchChunkSize)
			if total-fetched < step {
				step = total - fetched
			}
			fetched += step
			if !emit(ctx, ch, Event{Kind: EventProgress, Fetched: fetched, Total: total}) {
				return
			}
		}
		emit(ctx, ch, Event{Kind: EventCompleted, Fetched: total, Total: total, Data: data, Metadata: meta})
	}()
	return ch
}

func emit(ctx context.Context, ch chan Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Delete removes the blob and metadata for the token. Subsequent fetches
// observe a Deleted event.
func (s *Store) Delete(token string) error {
	batch := s.db.NewBatch()
	if err := batch.Delete(blobKey(token), nil); err != nil {
		batch.Close()
		return err
	}
	if err := batch.Delete(metaKey(token), nil); err != nil {
		batch.Close()
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *Store) getBlob(token string) ([]byte, bool) {
	v, closer, err := s.db.Get(blobKey(token))
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			logger.Warn("attachment_read_failed", "token", token, "error", err)
		}
		return nil, false
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

func (s *Store) getMeta(token string) map[string]string {
	v, closer, err := s.db.Get(metaKey(token))
	if err != nil {
		return nil
	}
	defer closer.Close()
	meta, err := decodeMeta(v)
	if err != nil {
		logger.Warn("attachment_meta_decode_failed", "token", token)
		return nil
	}
	return meta
}
