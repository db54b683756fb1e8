package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"tienditabot/internal/config"
	"tienditabot/internal/memory"
	"tienditabot/internal/notify"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the bot installation",
		Long: `Verifies the configuration, the conversation store, the listen port and
the optional RabbitMQ and Telegram integrations. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("tienditabot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file (optional)
			cfgPath := resolveConfigPath()
			if cfgPath == "" {
				printWarn("Config file", "none, using environment only")
				warned++
			} else if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'tienditabot init' to create a default configuration.\n")
				return fmt.Errorf("config file not found")
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, err := config.Read(cfgPath)
			if err != nil {
				printFail("Config", err.Error())
				fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", passed, warned, failed+1)
				return err
			}
			if err := config.Validate(cfg); err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}

			// 3. Conversation store
			if cfg.Store.Enabled {
				if v, err := checkDatabase(cfg.Store.Path); err != nil {
					printFail("Database", err.Error())
					failed++
				} else {
					printPass("Database", fmt.Sprintf("%s (schema v%d)", cfg.Store.Path, v))
					passed++
				}
			} else {
				printWarn("Database", "disabled, conversations are not stored")
				warned++
			}

			// 4. Listen port
			if err := checkPort(cfg.Server.Addr()); err != nil {
				printWarn("Listen port", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr(), err))
				warned++
			} else {
				printPass("Listen port", cfg.Server.Addr()+" available")
				passed++
			}

			// 5. Welcome image
			if p := cfg.Media.WelcomeImagePath; p != "" {
				if info, err := os.Stat(p); err != nil || info.IsDir() {
					printWarn("Welcome image", "not found: "+p)
					warned++
				} else {
					printPass("Welcome image", p)
					passed++
				}
			}
			if cfg.WhatsApp.AppSecret == "" {
				printWarn("Webhook signature", "appSecret not set, deliveries are not verified")
				warned++
			}

			// 6. RabbitMQ
			if cfg.Events.URL != "" {
				if err := checkBroker(cfg.Events.URL); err != nil {
					printFail("RabbitMQ", err.Error())
					failed++
				} else {
					printPass("RabbitMQ", config.Sanitize(cfg).Events.URL)
					passed++
				}
			}

			// 7. Telegram
			if cfg.Notify.Telegram.Enabled() {
				_, err := notify.NewTelegram(notify.TelegramConfig{
					Token:  cfg.Notify.Telegram.Token,
					ChatID: cfg.Notify.Telegram.ChatID,
					Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
				})
				if err != nil {
					printFail("Telegram", err.Error())
					failed++
				} else {
					printPass("Telegram", fmt.Sprintf("chat %d", cfg.Notify.Telegram.ChatID))
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running the bot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nThe bot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! The bot is ready to run.\n")
			}
			return nil
		},
	}
}

// checkDatabase opens the store, which creates and migrates it, and returns
// the schema version.
func checkDatabase(dbPath string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return 0, fmt.Errorf("cannot create database directory: %w", err)
	}
	store, err := memory.NewSQLiteStore(dbPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return 0, err
	}
	defer store.Close()
	return memory.GetSchemaVersion(store.DB())
}

func checkBroker(url string) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("cannot connect: %w", err)
	}
	return conn.Close()
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
