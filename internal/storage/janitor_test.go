package storage

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/snapevent/internal/models"
)

// flakyStore fails a configurable number of times before succeeding
type flakyStore struct {
	mu        sync.Mutex
	failures  int
	deleted   []string
	callCount int
}

func (s *flakyStore) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCount++
	if s.callCount <= s.failures {
		return errors.New("file locked")
	}
	s.deleted = append(s.deleted, path)
	return nil
}

func (s *flakyStore) DeleteTree(path string) error           { return s.Delete(path) }
func (s *flakyStore) Save(string, io.Reader) error           { return nil }
func (s *flakyStore) Move(string, string) error              { return nil }
func (s *flakyStore) Exists(string) bool                     { return false }
func (s *flakyStore) EnsureDir(string) error                 { return nil }
func (s *flakyStore) Abs(path string) (string, error)        { return path, nil }

type recordingDeadLetter struct {
	mu       sync.Mutex
	failures []models.CleanupFailure
}

func (d *recordingDeadLetter) RecordCleanupFailure(_ context.Context, f models.CleanupFailure) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, f)
	return nil
}

func newTestJanitor(store FileStore, dl DeadLetter) *Janitor {
	j := NewJanitor(store, dl)
	j.sleep = func(time.Duration) {}
	return j
}

func TestRemoveRetriesUntilSuccess(t *testing.T) {
	store := &flakyStore{failures: 3}
	dl := &recordingDeadLetter{}
	j := newTestJanitor(store, dl)

	j.Remove(context.Background(), "events/7/a.jpg")

	require.Equal(t, []string{"events/7/a.jpg"}, store.deleted)
	require.Empty(t, dl.failures)
}

func TestRemoveDeadLettersAfterExhaustion(t *testing.T) {
	store := &flakyStore{failures: 1 << 30}
	dl := &recordingDeadLetter{}
	j := newTestJanitor(store, dl)
	j.maxElapsed = time.Millisecond

	j.Remove(context.Background(), "events/7/a.jpg")

	require.Len(t, dl.failures, 1)
	require.Equal(t, "events/7/a.jpg", dl.failures[0].Path)
	require.Equal(t, "delete_file", dl.failures[0].Op)
	require.NotEmpty(t, dl.failures[0].LastError)
	require.GreaterOrEqual(t, dl.failures[0].Attempts, 1)
}

func TestRemoveSucceedsFirstTry(t *testing.T) {
	store := &flakyStore{}
	j := newTestJanitor(store, nil)

	j.Remove(context.Background(), "events/7/a.jpg")
	require.Equal(t, 1, store.callCount)
}
