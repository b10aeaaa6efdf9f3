package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"curie/internal/gateway"
	"curie/internal/onboarding"

	// Connectors self-register on import.
	_ "curie/internal/connector/discord"
	_ "curie/internal/connector/httpapi"
	_ "curie/internal/connector/telegram"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "curie",
		Short: "Curie - persona chatbot assistant",
		Long: `Curie is a persona-driven chatbot assistant backed by local models.
It runs as an interactive terminal chat or as a service answering
Telegram, Discord and HTTP API traffic.

Examples:
  curie chat
  curie chat "what time is it in Tokyo?"
  curie serve --connector telegram
  curie onboard`,
		Version: version,
	}

	rootCmd.AddCommand(
		newChatCmd(),
		newServeCmd(),
		newOnboardCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	return rootCmd
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat in the terminal",
		Long: `Start an interactive chat session, or send a single message and print
the reply when one is given as an argument.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gw := gatewayFromFlags(cmd)
			if len(args) > 0 {
				return gw.Execute(context.Background(), strings.Join(args, " "))
			}
			return gw.Run(context.Background())
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run as a service with connectors",
		Long: `Start Curie as a long-running service, answering messages on every
connector with credentials configured.

Examples:
  curie serve
  curie serve --connector telegram --connector http`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, _ := cmd.Flags().GetStringSlice("connector")
			return gatewayFromFlags(cmd).Serve(context.Background(), names)
		},
	}
	cmd.Flags().StringSlice("connector", nil, "connectors to run (telegram, discord, http)")
	return cmd
}

func newOnboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Run the interactive setup wizard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Root().PersistentFlags().GetString("config")
			return onboarding.Run(path)
		},
	}
}

func gatewayFromFlags(cmd *cobra.Command) *gateway.Gateway {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	return gateway.New(path)
}
