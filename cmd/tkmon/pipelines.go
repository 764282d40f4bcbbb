package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "List and inspect pipelines",
}

var pipelinesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent pipelines",
	RunE:  runPipelinesList,
}

var pipelinesShowCmd = &cobra.Command{
	Use:   "show [pipeline-id]",
	Short: "Show pipeline details",
	Args:  cobra.ExactArgs(1),
	RunE:  runPipelinesShow,
}

var (
	listApp    string
	listStatus string
	listLimit  int
)

func init() {
	pipelinesCmd.AddCommand(pipelinesListCmd, pipelinesShowCmd)

	pipelinesListCmd.Flags().StringVar(&listApp, "app", "", "Filter by application name")
	pipelinesListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending, running, succeeded, failed, cancelled)")
	pipelinesListCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of pipelines")
}

func runPipelinesList(cmd *cobra.Command, args []string) error {
	client := newClient()
	ctx, cancel := context.WithTimeout(cmd.Context(), api.DefaultTimeout)
	defer cancel()

	pipelines := client.ListPipelines(ctx, api.ListOptions{
		App:    listApp,
		Status: listStatus,
		Limit:  listLimit,
	})
	if len(pipelines) == 0 {
		fmt.Println("No pipelines found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAPP\tSTATUS\tSTARTED\tDURATION")
	for _, p := range pipelines {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(p.ID), p.AppName, p.Status,
			formatStart(p.StartTime), formatOptionalDuration(p.Duration))
	}
	w.Flush()
	return nil
}

func runPipelinesShow(cmd *cobra.Command, args []string) error {
	client := newClient()
	ctx, cancel := context.WithTimeout(cmd.Context(), api.DefaultTimeout)
	defer cancel()

	p, err := client.GetPipeline(ctx, args[0])
	if errors.Is(err, api.ErrNotFound) {
		fmt.Printf("Pipeline %s not found\n", args[0])
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("ID:       %s\n", p.ID)
	fmt.Printf("App:      %s\n", p.AppName)
	fmt.Printf("Status:   %s\n", p.Status)
	fmt.Printf("Started:  %s\n", formatStart(p.StartTime))
	if p.EndTime != nil {
		fmt.Printf("Ended:    %s\n", formatStart(*p.EndTime))
	}
	fmt.Printf("Duration: %s\n", formatOptionalDuration(p.Duration))
	if p.Trigger.Kind != models.TriggerUnknown {
		line := string(p.Trigger.Kind)
		if p.Trigger.User != "" {
			line += " by " + p.Trigger.User
		}
		if p.Trigger.Branch != "" {
			line += " on " + p.Trigger.Branch
		}
		fmt.Printf("Trigger:  %s\n", line)
	}

	if len(p.Stages) > 0 {
		fmt.Println("\nStages:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tSTATUS\tSTARTED\tDURATION\tERROR")
		for _, s := range p.Stages {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
				s.Name, s.Status, formatStart(s.StartedAt),
				formatOptionalDuration(s.Duration), s.ErrorMessage)
		}
		w.Flush()
	}

	if len(p.Events) > 0 {
		fmt.Println("\nEvents:")
		for _, e := range p.Events {
			marker := string(e.Type)
			if e.Type == models.EventUnknown && e.RawType != "" {
				marker = e.RawType
			}
			line := fmt.Sprintf("  %s  %s", formatStart(e.Timestamp), marker)
			if e.Reason != "" {
				line += "  " + e.Reason
			}
			fmt.Println(line)
		}
	}
	return nil
}

// --- Helpers shared by the one-shot commands ---

func formatStart(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatOptionalDuration(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	return d.Truncate(time.Second).String()
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
