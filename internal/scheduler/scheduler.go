package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/snapevent/internal/events"
	"example.com/snapevent/internal/metrics"
	"example.com/snapevent/internal/models"
)

// Store is the persistence surface the sweep needs
type Store interface {
	ListUnfinished(ctx context.Context) ([]models.Event, error)
	ApplyStatusChange(ctx context.Context, id uint, ch events.Change) error
}

// Presence is cleared when a sweep ends an event
type Presence interface {
	Clear(ctx context.Context, eventID uint) error
}

// Sweeper reconciles event status against wall-clock time. It runs on a
// repeating timer with no external trigger; per-event failures are logged
// and isolated so one poisoned row never halts the sweep.
type Sweeper struct {
	store    Store
	presence Presence
	metrics  *metrics.Metrics
	autoEnd  time.Duration
	now      func() time.Time
}

// NewSweeper creates a sweeper with the configured auto-end duration
func NewSweeper(store Store, presence Presence, m *metrics.Metrics, autoEnd time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		presence: presence,
		metrics:  m,
		autoEnd:  autoEnd,
		now:      time.Now,
	}
}

// Sweep evaluates every non-terminal event once
func (s *Sweeper) Sweep(ctx context.Context) error {
	s.metrics.Inc(metrics.SweepRuns)

	evs, err := s.store.ListUnfinished(ctx)
	if err != nil {
		s.metrics.Inc(metrics.SweepErrors)
		return err
	}

	now := s.now()
	for i := range evs {
		if err := s.processEvent(ctx, &evs[i], now); err != nil {
			// Isolate per-row failures and keep sweeping.
			s.metrics.Inc(metrics.SweepErrors)
			log.Error().Err(err).
				Uint("event_id", evs[i].ID).
				Str("status", string(evs[i].Status)).
				Msg("Scheduler failed to process event")
		}
	}
	return nil
}

func (s *Sweeper) processEvent(ctx context.Context, ev *models.Event, now time.Time) error {
	ch := s.evaluate(ev, now)
	if ch == nil {
		return nil
	}

	if err := s.store.ApplyStatusChange(ctx, ev.ID, *ch); err != nil {
		return err
	}

	if ch.ClearPresence {
		if err := s.presence.Clear(ctx, ev.ID); err != nil {
			log.Warn().Err(err).Uint("event_id", ev.ID).Msg("Failed to clear presence registry")
		}
	}

	switch ch.Status {
	case models.EventStatusEnded:
		s.metrics.Inc(metrics.EventsEnded)
		log.Info().
			Uint("event_id", ev.ID).
			Time("auto_end_at", *ch.AutoEndAt).
			Msg("Scheduler ended event")
	case models.EventStatusLive:
		if ev.Status != models.EventStatusLive {
			s.metrics.Inc(metrics.EventsPromoted)
			log.Info().Uint("event_id", ev.ID).Msg("Scheduler promoted event to live")
		} else {
			log.Debug().Uint("event_id", ev.ID).Msg("Scheduler renewed live event auto-end")
		}
	}
	return nil
}

// evaluate decides what, if anything, the sweep does to one event. The
// branches are checked in strict precedence order.
func (s *Sweeper) evaluate(ev *models.Event, now time.Time) *events.Change {
	if ev.Status == models.EventStatusEnded {
		return nil
	}
	snap := events.Snapshot{
		Status:           ev.Status,
		ScheduledStartAt: ev.ScheduledStartAt,
		AutoEndAt:        ev.AutoEndAt,
	}

	// 1. The auto-end time has passed: end it, whatever the status.
	if ev.AutoEndAt != nil && !now.Before(*ev.AutoEndAt) {
		ch, err := events.Transition(snap, models.EventStatusEnded, now, s.autoEnd)
		if err != nil {
			return nil
		}
		return &ch
	}

	// 2. A live event with no auto-end gets one; nothing but an explicit
	// pause/end or a future end time stops a live event.
	if ev.Status == models.EventStatusLive && ev.AutoEndAt == nil {
		end := now.Add(s.autoEnd)
		return &events.Change{Status: models.EventStatusLive, AutoEndAt: &end}
	}

	if ev.ScheduledStartAt == nil {
		return nil
	}

	// 3. A scheduled event whose whole window elapsed before anyone started
	// it expired without ever going live.
	if ev.Status == models.EventStatusScheduled && !now.Before(ev.ScheduledStartAt.Add(s.autoEnd)) {
		end := ev.ScheduledStartAt.Add(s.autoEnd)
		return &events.Change{
			Status:        models.EventStatusEnded,
			AutoEndAt:     &end,
			ClearPresence: true,
		}
	}

	// 4. The start time has arrived: promote to live.
	if !ev.ScheduledStartAt.After(now) &&
		(ev.Status == models.EventStatusScheduled || ev.Status == models.EventStatusPaused) {
		ch, err := events.Transition(snap, models.EventStatusLive, now, s.autoEnd)
		if err != nil {
			return nil
		}
		return &ch
	}

	return nil
}
