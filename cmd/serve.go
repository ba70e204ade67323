package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bsakel/denbot/internal/bus"
	"github.com/bsakel/denbot/internal/dispatch"
	"github.com/bsakel/denbot/internal/mailbox"
	"github.com/bsakel/denbot/internal/scheduler"
)

var serveGroup string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant: mailbox, scheduler, and interactive chat",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveGroup, "group", "g", "home", "Group name for this console session")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	// Envelope handling runs off the discovery loops so a long delegation
	// cannot stall mailbox delivery.
	err = rt.mailbox.Start(func(_ context.Context, env mailbox.Envelope) {
		go rt.host.Handle(ctx, env)
	})
	if err != nil {
		return fmt.Errorf("starting mailbox: %w", err)
	}

	dispatcher := dispatch.New(rt.cfg.Dispatch.MaxConcurrent)
	defer dispatcher.Stop()

	sched := scheduler.New(scheduler.Options{
		Store:      rt.store,
		Dispatcher: dispatcher,
		Invoker:    rt.host,
		Tick:       rt.cfg.Tick(),
		RunTimeout: rt.cfg.RunTimeout(),
	})
	go sched.Start(ctx)
	defer sched.Stop()

	// Proactive messages (scheduled runs, send_message) land on the console.
	rt.bus.Subscribe(func(m bus.OutboundMessage) {
		fmt.Printf("\n[%s] denbot: %s\nYou: ", m.GroupName, m.Content)
	})
	go rt.bus.Dispatch(ctx)

	fmt.Printf("denbot serving group %q (type 'exit' or Ctrl+C to quit)\n\n", serveGroup)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		done := make(chan struct{})
		text := input
		err := dispatcher.Submit(ctx, serveGroup, func(ctx context.Context) {
			defer close(done)
			reply, err := rt.host.RunRouter(ctx, serveGroup, text)
			if err != nil {
				log.Printf("[Serve] router: %v", err)
				return
			}
			fmt.Printf("denbot: %s\n", reply)
		})
		if err != nil {
			return err
		}
		select {
		case <-done:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
