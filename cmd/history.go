package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"chatflow/pkg/config"
	"chatflow/pkg/history"
	"chatflow/pkg/kv"
	"chatflow/pkg/logger"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear the persisted chat history",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted chat history",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		store, closeStore, err := openHistory()
		if err != nil {
			fmt.Printf("failed to open history: %v\n", err)
			return
		}
		defer closeStore()

		printEntries(cmd.OutOrStdout(), store.Reload(context.Background()))
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted chat history",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		store, closeStore, err := openHistory()
		if err != nil {
			fmt.Printf("failed to open history: %v\n", err)
			return
		}
		defer closeStore()

		if err := store.Clear(context.Background()); err != nil {
			fmt.Printf("failed to clear history: %v\n", err)
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd, historyClearCmd)
}

func openHistory() (*history.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(log)

	return newHistoryStore(cfg, log)
}

func newHistoryStore(cfg *config.Config, log *slog.Logger) (*history.Store, func(), error) {
	storage, err := kv.New(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage %s: %w", cfg.Storage.String(), err)
	}

	closeStore := func() {
		if err := storage.Close(); err != nil {
			log.Warn("Failed to close storage", "error", err)
		}
	}
	return history.New(storage, cfg.History, log), closeStore, nil
}

func printEntries(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no history")
		return
	}

	for _, entry := range entries {
		fmt.Fprintf(w, "%s  %-6s  %s\n",
			entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
			entry.Sender,
			strings.ReplaceAll(strings.TrimSpace(entry.Content), "\n", " "),
		)
	}
}
