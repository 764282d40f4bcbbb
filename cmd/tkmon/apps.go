package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List applications known to the control plane",
	RunE:  runApps,
}

func runApps(cmd *cobra.Command, args []string) error {
	client := newClient()
	ctx, cancel := context.WithTimeout(cmd.Context(), api.DefaultTimeout)
	defer cancel()

	apps, err := client.ListApplications(ctx)
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		fmt.Println("No applications found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tNAMESPACE\tDESCRIPTION")
	for _, a := range apps {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.Name, a.Namespace, a.Description)
	}
	w.Flush()
	return nil
}
