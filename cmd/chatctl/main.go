package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type config struct {
	badgerPath string
	jwtSecret  string
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:          "chatctl",
		Short:        "Operator tool for the chat relay",
		Long:         "chatctl seeds and inspects the rooms, messages and cursors stored by the chat relay, and issues test tokens.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfg.badgerPath, "badger", envOrDefault("BADGER_FILEPATH", "./data/badger"), "Path to the badger directory")
	root.PersistentFlags().StringVar(&cfg.jwtSecret, "jwt-secret", os.Getenv("JWT_SECRET"), "Secret used to sign tokens")

	root.AddCommand(newRoomCmd(cfg))
	root.AddCommand(newInspectCmd(cfg))
	root.AddCommand(newTokenCmd(cfg))
	return root
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
