package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aichat",
	Short: "AI chat relay: websocket rooms and HTTP endpoints over a completion provider",
}

func main() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newChatCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
