package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/snapevent/config"
	"example.com/snapevent/internal/api"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server handling event management, uploads and moderation`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	application, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer application.close()

	server := api.NewServer(cfg, api.Deps{
		Events:     application.events,
		Media:      application.media,
		Moderation: application.moderation,
		Users:      application.users,
		Metrics:    application.metrics,
		Tracer:     application.tracer,
	})

	// The lifecycle sweep runs inside the API process so it shares the
	// presence registry; with the memory backend a detached worker could not
	// clear another process's viewer sets.
	go func() {
		if err := runSweepLoop(ctx, application); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Lifecycle sweep stopped")
		}
	}()

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
