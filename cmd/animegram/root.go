package main

import (
	"fmt"

	"animegram/internal/config"
	"animegram/internal/middleware"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	envFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "animegram",
	Short: "Animegram API server",
	Long: `Animegram serves the feed, chat and notification state of the
Animegram client over HTTP and WebSocket.

Configuration comes from config.yml, config.<APP_ENV>.yml and the
environment. A .env file is loaded first when present.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}

		loaded, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		middleware.Logger.Debug("configuration loaded", "env", cfg.Env, "data_source", cfg.DataSource)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading configuration")
}
