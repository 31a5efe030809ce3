package main

import (
	"fmt"
	"os"

	"github.com/fentz26/potok/internal/client"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "potok",
	Short: "Potok - adaptive task scheduling",
	Long: `Potok plans tasks into free working time, taking deadlines, priorities
and the user's current energy and focus into account.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr string
	userID  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", envOr("POTOK_API", "http://127.0.0.1:7466"), "API server address")
	rootCmd.PersistentFlags().StringVar(&userID, "user", envOr("POTOK_USER", os.Getenv("USER")), "User whose tasks are managed")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(distributeCmd, mitCmd, prioritizeCmd, rescheduleCmd, historyCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func apiClient() *client.Client {
	return client.New(apiAddr)
}

func requireUser() error {
	if userID == "" {
		return fmt.Errorf("no user: pass --user or set POTOK_USER")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
