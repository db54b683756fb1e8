package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tienditabot/internal/config"
	"tienditabot/internal/domain"
	"tienditabot/internal/memory"
)

func conversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Browse the conversation store",
	}

	var listLimit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			convs, err := store.ListConversations(context.Background(), listLimit)
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Println("No conversations yet.")
				return nil
			}
			fmt.Printf("%-18s %-20s %-24s %-8s %6s  %s\n", "ID", "NAME", "STATE", "STATUS", "UNREAD", "LAST MESSAGE")
			for _, c := range convs {
				fmt.Printf("%-18s %-20s %-24s %-8s %6d  %s %s\n",
					c.ID, clip(c.SenderName, 20), c.State, c.Status, c.UnreadCount,
					c.LastMessageAt.Local().Format("2006-01-02 15:04"), clip(c.LastMessageText, 50))
			}
			return nil
		},
	}
	list.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum conversations to show")

	var (
		showLimit int
		markRead  bool
	)
	show := &cobra.Command{
		Use:   "show [phone or id]",
		Short: "Show the messages of one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			id := args[0]
			if !strings.HasPrefix(id, "wa:") {
				id = domain.ConversationID(strings.TrimPrefix(id, "+"))
			}
			conv, err := store.GetConversation(ctx, id)
			if err != nil {
				return err
			}
			if conv == nil {
				return fmt.Errorf("conversation %s not found", id)
			}

			fmt.Printf("%s  %s  state=%s status=%s needsHuman=%v\n\n",
				conv.ID, conv.SenderName, conv.State, conv.Status, conv.NeedsHuman)
			turns, err := store.GetMessages(ctx, id, showLimit)
			if err != nil {
				return err
			}
			for _, t := range turns {
				arrow := "<-"
				if t.Direction == "out" {
					arrow = "->"
				}
				line := fmt.Sprintf("%s %s %s", t.CreatedAt.Local().Format("2006-01-02 15:04:05"), arrow, t.Text)
				if t.IntentID != "" {
					line += fmt.Sprintf("  [%s]", t.IntentID)
				}
				if t.StatusCode != 0 {
					line += fmt.Sprintf("  (%d)", t.StatusCode)
				}
				fmt.Println(line)
			}

			if markRead {
				return store.MarkRead(ctx, id)
			}
			return nil
		},
	}
	show.Flags().IntVarP(&showLimit, "limit", "n", 50, "maximum messages to show")
	show.Flags().BoolVar(&markRead, "mark-read", false, "reset the unread counter")

	cmd.AddCommand(list, show)
	return cmd
}

func openStore() (*memory.SQLiteStore, error) {
	cfg, err := config.Read(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return memory.NewSQLiteStore(cfg.Store.Path, newLogger(cfg.Log.SlogLevel()))
}

// clip shortens s to n runes.
func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
