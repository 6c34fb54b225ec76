package main

import (
	"os"

	"github.com/spf13/cobra"
)

var envFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:          "feishubot",
		Short:        "Feishu webhook relay answering chats through a Dialogflow agent",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serve.RunE,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env if present)")

	root.AddCommand(serve)
	root.AddCommand(newNLUCmd())
	return root
}
