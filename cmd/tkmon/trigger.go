package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger a build for an application",
	RunE:  runTrigger,
}

var (
	triggerApp     string
	triggerBranch  string
	triggerCommit  string
	triggerMessage string
)

func init() {
	triggerCmd.Flags().StringVar(&triggerApp, "app", "", "Application name (required)")
	triggerCmd.Flags().StringVar(&triggerBranch, "branch", "", "Branch to build")
	triggerCmd.Flags().StringVar(&triggerCommit, "commit", "", "Commit to build")
	triggerCmd.Flags().StringVar(&triggerMessage, "message", "", "Reason for the build")
	triggerCmd.MarkFlagRequired("app")
}

func runTrigger(cmd *cobra.Command, args []string) error {
	client := newClient()
	ctx, cancel := context.WithTimeout(cmd.Context(), api.DefaultTimeout)
	defer cancel()

	err := client.TriggerBuild(ctx, api.TriggerRequest{
		AppName: triggerApp,
		Branch:  triggerBranch,
		Commit:  triggerCommit,
		Message: triggerMessage,
	})
	if err != nil {
		return fmt.Errorf("trigger build: %w", err)
	}

	fmt.Printf("Requested build for %s\n", triggerApp)
	return nil
}
