package storage

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/snapevent/internal/models"
)

// DeadLetter records cleanup operations that exhausted their retries so an
// operator can reconcile orphaned files later.
type DeadLetter interface {
	RecordCleanupFailure(ctx context.Context, f models.CleanupFailure) error
}

const (
	opDeleteFile = "delete_file"
	opDeleteTree = "delete_tree"
)

// Janitor removes files after the authoritative database mutation has
// committed. The filesystem may transiently lock files still being served,
// so each removal retries with exponential backoff and jitter; exhausted
// removals are dead-lettered, never silently dropped.
type Janitor struct {
	store      FileStore
	deadLetter DeadLetter
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxElapsed time.Duration
	sleep      func(time.Duration)
}

// NewJanitor creates a janitor with the default retry policy: delays capped
// at 2s per attempt, about 30s overall.
func NewJanitor(store FileStore, deadLetter DeadLetter) *Janitor {
	return &Janitor{
		store:      store,
		deadLetter: deadLetter,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
		maxElapsed: 30 * time.Second,
		sleep:      time.Sleep,
	}
}

// RemoveFilesAsync deletes files on a detached goroutine
func (j *Janitor) RemoveFilesAsync(paths []string) {
	go func() {
		for _, p := range paths {
			j.remove(context.Background(), opDeleteFile, p)
		}
	}()
}

// RemoveTreeAsync deletes a directory tree on a detached goroutine
func (j *Janitor) RemoveTreeAsync(path string) {
	go j.remove(context.Background(), opDeleteTree, path)
}

// Remove deletes a single file synchronously with the retry policy
func (j *Janitor) Remove(ctx context.Context, path string) {
	j.remove(ctx, opDeleteFile, path)
}

func (j *Janitor) remove(ctx context.Context, op, path string) {
	deadline := time.Now().Add(j.maxElapsed)
	delay := j.baseDelay

	var lastErr error
	attempts := 0
	for {
		attempts++
		lastErr = j.attempt(op, path)
		if lastErr == nil {
			return
		}
		if time.Now().Add(delay).After(deadline) {
			break
		}
		log.Warn().Err(lastErr).
			Str("op", op).
			Str("path", path).
			Int("attempt", attempts).
			Msg("File cleanup failed, retrying")
		j.sleep(jitter(delay))
		if delay *= 2; delay > j.maxDelay {
			delay = j.maxDelay
		}
	}

	// The file stays orphaned; the dead-letter row is the operator's cue.
	log.Error().Err(lastErr).
		Str("op", op).
		Str("path", path).
		Int("attempts", attempts).
		Msg("File cleanup abandoned after retries")
	if j.deadLetter == nil {
		return
	}
	failure := models.CleanupFailure{
		Path:      path,
		Op:        op,
		Attempts:  attempts,
		LastError: lastErr.Error(),
	}
	if err := j.deadLetter.RecordCleanupFailure(ctx, failure); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to dead-letter cleanup failure")
	}
}

func (j *Janitor) attempt(op, path string) error {
	if op == opDeleteTree {
		return j.store.DeleteTree(path)
	}
	return j.store.Delete(path)
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}
