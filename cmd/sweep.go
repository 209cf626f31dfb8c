package cmd

import (
	"context"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"example.com/snapevent/internal/scheduler"
)

// runSweepLoop runs the event lifecycle sweep on the configured interval
// until the context is cancelled.
func runSweepLoop(ctx context.Context, application *app) error {
	sweeper := scheduler.NewSweeper(
		application.eventRepo,
		application.tracker,
		application.metrics,
		application.cfg.Events.AutoEndDuration,
	)

	log.Info().
		Dur("interval", application.cfg.Events.SchedulerInterval).
		Msg("Starting event lifecycle sweep")

	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = s.NewJob(
		gocron.DurationJob(application.cfg.Events.SchedulerInterval),
		gocron.NewTask(func() {
			if err := sweeper.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("Lifecycle sweep failed")
			}
		}),
	)
	if err != nil {
		return err
	}

	s.Start()
	<-ctx.Done()
	return s.Shutdown()
}
