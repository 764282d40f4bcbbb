package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the control plane is reachable",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := newClient()
	ctx, cancel := context.WithTimeout(cmd.Context(), api.DefaultTimeout)
	defer cancel()

	if !client.TestConnection(ctx) {
		return fmt.Errorf("control plane at %s is unreachable", client.BaseURL())
	}

	fmt.Printf("Control plane at %s is reachable\n", client.BaseURL())
	if !api.ValidToken(cfg.API.Token) {
		fmt.Println("No valid token configured; requests are anonymous. Run 'tkmon config token <token>'.")
	}
	return nil
}
