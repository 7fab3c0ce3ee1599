package syncer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
)

// ItemError is a failure on a single file or key. It never aborts the operation.
type ItemError struct {
	Op   string `json:"op"`
	Path string `json:"path"`
	Err  error  `json:"-"`
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Summary counts per-item outcomes of a clone, pull or push. Safe for concurrent use.
type Summary struct {
	mu        sync.Mutex
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Bytes     int64        `json:"bytes"`
	Errors    []*ItemError `json:"errors,omitempty"`
}

func (s *Summary) succeed(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Succeeded++
	s.Bytes += bytes
}

func (s *Summary) skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped++
}

func (s *Summary) fail(op, path string, err error) {
	slog.Error("sync item failed", "op", op, "path", path, "error", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed++
	s.Errors = append(s.Errors, &ItemError{Op: op, Path: path, Err: err})
}

// Merge folds other's counts into s.
func (s *Summary) Merge(other *Summary) {
	if other == nil || other == s {
		return
	}
	other.mu.Lock()
	succeeded, skipped, failed, bytes := other.Succeeded, other.Skipped, other.Failed, other.Bytes
	itemErrs := append([]*ItemError(nil), other.Errors...)
	other.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Succeeded += succeeded
	s.Skipped += skipped
	s.Failed += failed
	s.Bytes += bytes
	s.Errors = append(s.Errors, itemErrs...)
}

// Err joins the item errors, or returns nil when nothing failed.
func (s *Summary) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Errors) == 0 {
		return nil
	}
	joined := make([]error, 0, len(s.Errors))
	for _, e := range s.Errors {
		joined = append(joined, e)
	}
	return errors.Join(joined...)
}

func (s *Summary) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%d succeeded, %d skipped, %d failed (%s)",
		s.Succeeded, s.Skipped, s.Failed, humanize.Bytes(uint64(max(s.Bytes, 0))))
}
