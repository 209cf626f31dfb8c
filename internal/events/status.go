package events

import (
	"time"

	"github.com/pkg/errors"

	"example.com/snapevent/internal/models"
)

// Domain errors returned for expected business-rule violations. Handlers map
// these to response codes instead of treating them as I/O failures.
var (
	ErrInvalidStatus     = errors.New("invalid status value")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrEventEnded        = errors.New("event has ended")
)

// Snapshot is the slice of event state the transition rules read
type Snapshot struct {
	Status           models.EventStatus
	ScheduledStartAt *time.Time
	AutoEndAt        *time.Time
}

// Change is the write set produced by a transition. Nil timestamp fields mean
// "leave untouched". ClearPresence is set when the event reaches its terminal
// state and the presence registry for it becomes meaningless.
type Change struct {
	Status           models.EventStatus
	ScheduledStartAt *time.Time
	AutoEndAt        *time.Time
	ClearPresence    bool
}

// allowedTransitions holds every permitted (from, to) pair. Ended is terminal
// and no-op transitions are rejected.
var allowedTransitions = map[models.EventStatus]map[models.EventStatus]bool{
	models.EventStatusScheduled: {
		models.EventStatusLive:  true,
		models.EventStatusEnded: true,
	},
	models.EventStatusLive: {
		models.EventStatusPaused: true,
		models.EventStatusEnded:  true,
	},
	models.EventStatusPaused: {
		models.EventStatusLive:  true,
		models.EventStatusEnded: true,
	},
	models.EventStatusEnded: {},
}

// ParseStatus validates a status string from the API
func ParseStatus(s string) (models.EventStatus, error) {
	switch st := models.EventStatus(s); st {
	case models.EventStatusScheduled, models.EventStatusLive,
		models.EventStatusPaused, models.EventStatusEnded:
		return st, nil
	default:
		return "", errors.Wrapf(ErrInvalidStatus, "status %q", s)
	}
}

// Transition validates the requested status change and computes the resulting
// write set. It is pure: the caller performs authorization beforehand and
// applies the change afterwards.
func Transition(cur Snapshot, target models.EventStatus, now time.Time, autoEnd time.Duration) (Change, error) {
	targets, ok := allowedTransitions[cur.Status]
	if !ok {
		return Change{}, errors.Wrapf(ErrInvalidStatus, "current status %q", cur.Status)
	}
	if cur.Status == models.EventStatusEnded {
		return Change{}, errors.Wrapf(ErrEventEnded, "cannot transition to %q", target)
	}
	if !targets[target] {
		return Change{}, errors.Wrapf(ErrInvalidTransition, "%q to %q", cur.Status, target)
	}

	switch target {
	case models.EventStatusLive:
		start := now
		if cur.ScheduledStartAt != nil {
			start = *cur.ScheduledStartAt
		}
		end := NextAutoEnd(cur.AutoEndAt, start, now, autoEnd)
		return Change{
			Status:           models.EventStatusLive,
			ScheduledStartAt: &start,
			AutoEndAt:        &end,
		}, nil

	case models.EventStatusEnded:
		// The end timestamp is pinned to the transition's wall-clock time so
		// auto_end_at is always a concrete value <= now once the event ends.
		end := now
		return Change{
			Status:        models.EventStatusEnded,
			AutoEndAt:     &end,
			ClearPresence: true,
		}, nil

	case models.EventStatusPaused:
		return Change{Status: models.EventStatusPaused}, nil
	}

	return Change{}, errors.Wrapf(ErrInvalidStatus, "status %q", target)
}

// NextAutoEnd computes the auto-end timestamp for an event going live: the
// later of start+duration and an existing auto-end that is still in the
// future. Stale or missing values are replaced, so the result is never before
// the start time.
func NextAutoEnd(existing *time.Time, start, now time.Time, d time.Duration) time.Time {
	candidate := start.Add(d)
	if existing != nil && existing.After(now) && existing.After(candidate) {
		return *existing
	}
	return candidate
}
