package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the daemon is up",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	health, err := apiClient().Health(cmd.Context())
	if health != nil {
		fmt.Printf("Version: %s\n", health.Version)
		fmt.Printf("DB:      %s\n", health.DB)
		fmt.Printf("Time:    %s\n", health.Time)
	}
	if err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}
