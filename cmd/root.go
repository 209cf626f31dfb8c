package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "snapevent",
	Short: "SnapEvent QR photo sharing service",
	Long:  `SnapEvent lets event organizers collect guest photos and videos through a QR share link`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
