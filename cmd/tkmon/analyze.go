package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
	"github.com/cmxela/thinkube-cicd-monitor/internal/reconcile"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [pipeline-id]",
	Short: "Analyze a pipeline run for bottlenecks and failures",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	client := newClient()
	ctx, cancel := context.WithTimeout(cmd.Context(), api.DefaultTimeout)
	defer cancel()

	p, err := fetchFullPipeline(ctx, client, args[0])
	if err != nil {
		return err
	}

	rec := reconcile.New()
	rec.IngestSnapshot(*p)
	report, err := rec.Analyze(p.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Pipeline: %s (%s)\n", truncateID(report.PipelineID), report.AppName)
	fmt.Printf("Status:   %s\n", report.Status)
	fmt.Printf("Score:    %d\n", report.Score)
	fmt.Printf("\n%s\n", report.Summary)

	if len(report.Bottlenecks) > 0 {
		fmt.Println("\nBottlenecks:")
		for _, b := range report.Bottlenecks {
			fmt.Printf("  [%s] %s gap between %s and %s\n",
				b.Severity, b.Gap.Truncate(time.Second), b.After, b.Before)
		}
	}
	if len(report.Failures) > 0 {
		fmt.Println("\nFailures:")
		for _, f := range report.Failures {
			line := fmt.Sprintf("  %s  %s", f.Time.Local().Format("15:04:05"), f.Type)
			if f.Reason != "" {
				line += "  " + f.Reason
			}
			fmt.Println(line)
		}
	}
	return nil
}
