package cmd

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/snapevent/config"
	"example.com/snapevent/internal/database"
	"example.com/snapevent/internal/models"
	"example.com/snapevent/internal/repositories"
)

var (
	userEmail string
	userName  string
	userRole  string
)

var userCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create an organizer account",
	Long:  `Create an organizer account and print its API token`,
	RunE:  runCreateUser,
}

func init() {
	userCmd.Flags().StringVar(&userEmail, "email", "", "account email")
	userCmd.Flags().StringVar(&userName, "name", "", "display name")
	userCmd.Flags().StringVar(&userRole, "role", models.RoleAdmin, "account role (admin or root)")
	rootCmd.AddCommand(userCmd)
}

func runCreateUser(cmd *cobra.Command, args []string) error {
	if userEmail == "" || userName == "" {
		return errors.New("--email and --name are required")
	}
	if userRole != models.RoleAdmin && userRole != models.RoleRoot {
		return errors.Errorf("unknown role %q", userRole)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	user := &models.User{
		Email:    userEmail,
		Name:     userName,
		Role:     userRole,
		APIToken: uuid.NewString(),
	}
	if err := repositories.NewUserRepository(db).Create(cmd.Context(), user); err != nil {
		return err
	}

	log.Info().
		Uint("user_id", user.ID).
		Str("email", user.Email).
		Str("role", user.Role).
		Str("api_token", user.APIToken).
		Msg("User created")
	return nil
}
