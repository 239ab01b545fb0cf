package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chatflow/pkg/bus"
	"chatflow/pkg/flow"
	"chatflow/pkg/kv"
	"chatflow/pkg/logger"
	"chatflow/pkg/notify"
	"chatflow/pkg/provider"
	"chatflow/pkg/session"
	"chatflow/pkg/speech"
	"chatflow/pkg/ui/chat"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	chatFlowPath string
	chatLogPath  string
	chatEmbedded bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long:  "Loads the chatflow configuration and flow, opens the history storage, and runs the chat session in the terminal.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := loadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}
		if chatFlowPath != "" {
			cfg.Flow.Path = chatFlowPath
		}
		if chatEmbedded {
			cfg.Session.Embedded = true
		}
		cfg.Session.StartOpen = true

		appLogger, closer, err := logger.NewFile(cfg.Logging, chatLogPath)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		defer closer.Close()
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.chat")

		steps, source, err := loadFlow(cfg.Flow.Path, cfg.Session.EntryStep)
		if err != nil {
			fmt.Printf("failed to load flow: %v\n", err)
			return
		}

		storage, err := kv.New(cfg.Storage)
		if err != nil {
			fmt.Printf("failed to open storage: %v\n", err)
			return
		}
		defer storage.Close()

		responder, err := provider.New(cfg.Provider)
		if err != nil {
			log.Warn("Chat replies unavailable", "provider", cfg.Provider.Name, "error", err)
			responder = nil
		}

		runner := flow.NewRunner(steps, responder, appLogger)
		sess := session.New(cfg, session.Deps{
			Steps:     steps,
			Storage:   storage,
			Speaker:   speech.New(cfg.Speech, appLogger),
			Notifier:  notify.NewBell(os.Stdout, cfg.Notifications.Enabled, appLogger),
			Processor: runner,
			Log:       appLogger,
		})
		runner.Bind(sess)
		defer sess.Bus().Close()

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		info := chat.RuntimeInfo{
			SessionID:    cfg.Session.ID,
			Flow:         source,
			Provider:     cfg.Provider.Name,
			Storage:      cfg.Storage.String(),
			BoundaryText: cfg.History.BoundaryText,
		}

		log.Info("Chat started", "flow", source, "storage", cfg.Storage.String(), "provider", cfg.Provider.Name)
		if err := runChat(runCtx, sess, info); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Chat failed", "error", err)
			fmt.Printf("chat failed: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatFlowPath, "flow", "f", "", "flow file (overrides flow.path)")
	chatCmd.Flags().StringVar(&chatLogPath, "log-file", "chatflow.log", "file receiving logs while the chat UI owns the terminal")
	chatCmd.Flags().BoolVar(&chatEmbedded, "embedded", false, "treat the chat as embedded in a page (speech works while closed)")
}

// runChat runs the UI, the event log and the session start together. Closing
// the UI stops the rest.
func runChat(ctx context.Context, sess *session.Session, info chat.RuntimeInfo) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		bus.Observe(gctx, sess.Bus(), slog.Default())
		return nil
	})
	g.Go(func() error {
		sess.Start(gctx)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return chat.Run(gctx, sess, info)
	})

	return g.Wait()
}
