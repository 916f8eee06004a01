package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aulalab/maisa/internal/app"
	"github.com/aulalab/maisa/internal/config"
	"github.com/aulalab/maisa/internal/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat with Maísa",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	sessionKey := uuid.NewString()

	// Greeting turn: no user text yet, the session stays unprimed.
	welcome, err := a.Sessions.Reply(ctx, sessionKey, "")
	if err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	fmt.Println("Maísa:", welcome)
	fmt.Println(`(type "q" to quit)`)
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "q" || input == "quit" || input == "exit" {
			fmt.Println("Goodbye!")
			return nil
		}

		reply, err := a.Sessions.Reply(ctx, sessionKey, input)
		if err != nil {
			if errors.Is(err, session.ErrEmptyInput) {
				continue
			}
			return fmt.Errorf("turn failed: %w", err)
		}
		fmt.Println("Maísa:", reply)
		fmt.Println()

		if ctx.Err() != nil {
			return nil
		}
	}
}
