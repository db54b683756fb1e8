package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tienditabot/internal/config"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string   // overridable via --config flag
	envFiles   []string // overridable via --env-file flag
)

func main() {
	logger = newLogger(slog.LevelInfo)

	root := &cobra.Command{
		Use:   "tienditabot",
		Short: "WhatsApp Business bot for La Tiendita",
		Long: `tienditabot answers the WhatsApp Cloud API webhook: it classifies customer
messages by keyword or button, replies with approved templates or plain text,
and logs every turn for the staff dashboard.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFiles...); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (default: ./"+config.DefaultConfigPath+" if present)")
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment (default: .env)")

	root.AddCommand(serveCmd())
	root.AddCommand(initCmd())
	root.AddCommand(configCmd())
	root.AddCommand(classifyCmd())
	root.AddCommand(conversationsCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveConfigPath returns the --config flag, the default file when it
// exists, or "" to configure from the environment only.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		return config.DefaultConfigPath
	}
	return ""
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tienditabot %s\n", version)
		},
	}
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Writes the default configuration with ${VAR} placeholders for every secret,
so the same file works with a .env file or the deployment's environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultConfigPath
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.New(path + " already exists (use --force to overwrite)")
			}

			cfg := config.Defaults()
			cfg.WhatsApp.VerifyToken = "${VERIFY_TOKEN}"
			cfg.WhatsApp.AccessToken = "${WHATSAPP_TOKEN}"
			cfg.WhatsApp.PhoneNumberID = "${PHONE_NUMBER_ID}"
			cfg.WhatsApp.HumanContact = "${HUMAN_CONTACT_NUMBER}"
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
