package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bsakel/denbot/internal/mailbox"
)

var (
	chatMessage string
	chatGroup   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Send one message to the router agent and print the reply",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Message to send")
	chatCmd.Flags().StringVarP(&chatGroup, "group", "g", "home", "Group name")
	chatCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consume envelopes so request tools (list_tasks, delegate) get answers
	// within this one-shot run.
	err = rt.mailbox.Start(func(_ context.Context, env mailbox.Envelope) {
		go rt.host.Handle(ctx, env)
	})
	if err != nil {
		return fmt.Errorf("starting mailbox: %w", err)
	}

	reply, err := rt.host.RunRouter(ctx, chatGroup, chatMessage)
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}
