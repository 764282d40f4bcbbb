package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change monitor configuration",
}

var configTokenCmd = &cobra.Command{
	Use:   "token [value]",
	Short: "Store the control-plane access token",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigToken,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configTokenCmd, configShowCmd)
}

func runConfigToken(cmd *cobra.Command, args []string) error {
	token := args[0]
	if !api.ValidToken(token) {
		fmt.Println("Warning: token does not look like a Thinkube token; it will not be attached to requests.")
	}

	cfg.API.Token = token
	if err := cfg.Save(cfgPath); err != nil {
		return err
	}
	fmt.Printf("Token saved to %s\n", cfgPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	token := "(not set)"
	if cfg.API.Token != "" {
		token = "(set, " + redact(cfg.API.Token) + ")"
		if !api.ValidToken(cfg.API.Token) {
			token += " - invalid, not attached to requests"
		}
	}

	fmt.Printf("Config file:       %s\n", cfgPath)
	fmt.Printf("API URL:           %s\n", cfg.API.URL)
	fmt.Printf("API token:         %s\n", token)
	fmt.Printf("Refresh interval:  %s\n", cfg.RefreshInterval)
	fmt.Printf("Notifications:     %s (enabled: %t)\n", cfg.Notifications.Level, cfg.Notifications.Enabled)
	if cfg.Kubeconfig != "" {
		fmt.Printf("Kubeconfig:        %s\n", cfg.Kubeconfig)
	}
	fmt.Printf("History database:  %s\n", cfg.History.Path)
	fmt.Printf("Log level:         %s\n", cfg.Log.Level)
	return nil
}

func redact(token string) string {
	if len(token) <= 7 {
		return "***"
	}
	return token[:5] + "..." + token[len(token)-2:]
}
