package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/quantumflow/aichat/pkg/chat"
	"github.com/quantumflow/aichat/pkg/client"
	"github.com/quantumflow/aichat/pkg/logging"
)

func newChatCmd() *cobra.Command {
	var (
		url            string
		conversationID string
		userID         string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Line-based terminal chat against a running relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.Setup("warn")

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			c, err := client.Dial(ctx, url)
			cancel()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Join(conversationID, userID); err != nil {
				return errors.Wrap(err, "join conversation")
			}
			select {
			case <-c.Joined():
			case <-time.After(10 * time.Second):
				return errors.New("timed out joining conversation")
			}
			fmt.Printf("conversation %s (type a message, ctrl-d to quit)\n", c.ConversationID())
			for _, m := range c.Messages() {
				printMessage(m)
			}

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					continue
				}
				seen := len(c.Messages())
				if err := c.SendMessage(text); err != nil {
					return err
				}
				if err := waitForReply(c, seen); err != nil {
					fmt.Println("error:", err)
					continue
				}
				for _, m := range c.Messages()[seen:] {
					printMessage(m)
				}
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:3003/ws", "relay websocket URL")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation to join (new one when empty)")
	cmd.Flags().StringVar(&userID, "user", "terminal-user", "user identifier")
	return cmd
}

// waitForReply blocks until an assistant message lands after the given offset
// or the relay reports an error.
func waitForReply(c *client.Client, seen int) error {
	for {
		select {
		case <-c.Updates():
			if p, ok := c.LastError(); ok {
				return errors.New(p.Message)
			}
			msgs := c.Messages()
			for _, m := range msgs[min(seen, len(msgs)):] {
				if m.Role == chat.RoleAssistant {
					return nil
				}
			}
		case <-c.Done():
			return errors.New("connection closed")
		}
	}
}

func printMessage(m chat.Message) {
	switch {
	case m.IsImage():
		fmt.Printf("[image] %s (%s, %d bytes encoded)\n", m.Prompt, m.Size, len(m.Image))
	default:
		fmt.Printf("%s: %s\n", m.Role, m.Content)
	}
}
