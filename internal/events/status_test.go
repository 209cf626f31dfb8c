package events

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/snapevent/internal/models"
)

var autoEnd = 3 * time.Minute

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"scheduled", "live", "paused", "ended"} {
		st, err := ParseStatus(s)
		require.NoError(t, err)
		require.Equal(t, models.EventStatus(s), st)
	}

	_, err := ParseStatus("archived")
	require.True(t, errors.Is(err, ErrInvalidStatus))
}

func TestTransitionToLiveSetsStartAndAutoEnd(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	ch, err := Transition(Snapshot{Status: models.EventStatusScheduled}, models.EventStatusLive, now, autoEnd)
	require.NoError(t, err)
	require.Equal(t, models.EventStatusLive, ch.Status)
	require.NotNil(t, ch.ScheduledStartAt)
	require.Equal(t, now, *ch.ScheduledStartAt)
	require.NotNil(t, ch.AutoEndAt)
	require.Equal(t, now.Add(autoEnd), *ch.AutoEndAt)
	require.False(t, ch.ClearPresence)
}

func TestTransitionToLiveKeepsExistingStart(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-time.Minute)

	ch, err := Transition(Snapshot{
		Status:           models.EventStatusScheduled,
		ScheduledStartAt: &start,
	}, models.EventStatusLive, now, autoEnd)
	require.NoError(t, err)
	require.Equal(t, start, *ch.ScheduledStartAt)
	require.Equal(t, start.Add(autoEnd), *ch.AutoEndAt)
}

func TestTransitionResumeKeepsFutureAutoEnd(t *testing.T) {
	// A paused event resuming keeps an auto-end further out than
	// start+duration rather than shortening the window.
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-time.Minute)
	existingEnd := now.Add(10 * time.Minute)

	ch, err := Transition(Snapshot{
		Status:           models.EventStatusPaused,
		ScheduledStartAt: &start,
		AutoEndAt:        &existingEnd,
	}, models.EventStatusLive, now, autoEnd)
	require.NoError(t, err)
	require.Equal(t, existingEnd, *ch.AutoEndAt)
}

func TestTransitionResumeReplacesStaleAutoEnd(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	start := now
	staleEnd := now.Add(-time.Minute)

	ch, err := Transition(Snapshot{
		Status:           models.EventStatusPaused,
		ScheduledStartAt: &start,
		AutoEndAt:        &staleEnd,
	}, models.EventStatusLive, now, autoEnd)
	require.NoError(t, err)
	require.Equal(t, start.Add(autoEnd), *ch.AutoEndAt)
}

func TestTransitionToEndedPinsAutoEndAndClearsPresence(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	futureEnd := now.Add(time.Hour)

	ch, err := Transition(Snapshot{
		Status:    models.EventStatusLive,
		AutoEndAt: &futureEnd,
	}, models.EventStatusEnded, now, autoEnd)
	require.NoError(t, err)
	require.Equal(t, models.EventStatusEnded, ch.Status)
	require.Equal(t, now, *ch.AutoEndAt)
	require.True(t, ch.ClearPresence)
}

func TestTransitionToPausedTouchesNothingElse(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	ch, err := Transition(Snapshot{Status: models.EventStatusLive}, models.EventStatusPaused, now, autoEnd)
	require.NoError(t, err)
	require.Equal(t, models.EventStatusPaused, ch.Status)
	require.Nil(t, ch.ScheduledStartAt)
	require.Nil(t, ch.AutoEndAt)
}

func TestTransitionRejectsInvalidPairs(t *testing.T) {
	now := time.Now()

	cases := []struct {
		from, to models.EventStatus
	}{
		{models.EventStatusScheduled, models.EventStatusPaused},
		{models.EventStatusScheduled, models.EventStatusScheduled},
		{models.EventStatusLive, models.EventStatusLive},
		{models.EventStatusLive, models.EventStatusScheduled},
		{models.EventStatusPaused, models.EventStatusPaused},
		{models.EventStatusPaused, models.EventStatusScheduled},
	}
	for _, tc := range cases {
		_, err := Transition(Snapshot{Status: tc.from}, tc.to, now, autoEnd)
		require.True(t, errors.Is(err, ErrInvalidTransition), "%s to %s", tc.from, tc.to)
	}
}

func TestTransitionFromEndedAlwaysFails(t *testing.T) {
	now := time.Now()
	for _, target := range []models.EventStatus{
		models.EventStatusScheduled, models.EventStatusLive,
		models.EventStatusPaused, models.EventStatusEnded,
	} {
		_, err := Transition(Snapshot{Status: models.EventStatusEnded}, target, now, autoEnd)
		require.True(t, errors.Is(err, ErrEventEnded), "target %s", target)
	}
}

func TestNextAutoEnd(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-time.Minute)

	// No existing value: start+duration.
	require.Equal(t, start.Add(autoEnd), NextAutoEnd(nil, start, now, autoEnd))

	// Existing value in the past is replaced.
	past := now.Add(-time.Second)
	require.Equal(t, start.Add(autoEnd), NextAutoEnd(&past, start, now, autoEnd))

	// Existing future value before start+duration is replaced too.
	near := now.Add(time.Minute)
	require.Equal(t, start.Add(autoEnd), NextAutoEnd(&near, start, now, autoEnd))

	// Existing future value past start+duration wins.
	far := now.Add(time.Hour)
	require.Equal(t, far, NextAutoEnd(&far, start, now, autoEnd))
}
