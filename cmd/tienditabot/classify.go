package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tienditabot/internal/config"
	"tienditabot/internal/domain"
	"tienditabot/internal/intent"
)

func classifyCmd() *cobra.Command {
	var (
		button bool
		name   string
	)
	cmd := &cobra.Command{
		Use:   "classify [text...]",
		Short: "Show how the bot would answer a message",
		Long: `Runs the keyword and button rules locally and prints the decision.
Nothing is sent to WhatsApp and nothing is stored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			kind := domain.KindText
			if button {
				kind = domain.KindInteractiveButton
			}
			dec := intent.NewClassifier(intent.FromConfig(cfg)).Classify(domain.InboundEvent{
				From:       "cli",
				Kind:       kind,
				Text:       strings.Join(args, " "),
				SenderName: name,
				Timestamp:  time.Now(),
			})
			data, _ := json.MarshalIndent(dec, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&button, "button", false, "treat the text as a tapped button title")
	cmd.Flags().StringVar(&name, "name", "", "sender profile name")
	return cmd
}
