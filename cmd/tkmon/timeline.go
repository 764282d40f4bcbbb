package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
	"github.com/cmxela/thinkube-cicd-monitor/internal/timeline"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline [pipeline-id]",
	Short: "Print a stage timeline for one pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runTimeline,
}

var timelineWidth int

func init() {
	timelineCmd.Flags().IntVar(&timelineWidth, "width", 100, "Chart width in columns")
}

func runTimeline(cmd *cobra.Command, args []string) error {
	client := newClient()
	ctx, cancel := context.WithTimeout(cmd.Context(), api.DefaultTimeout)
	defer cancel()

	p, err := fetchFullPipeline(ctx, client, args[0])
	if err != nil {
		return err
	}

	chart := timeline.Build(*p, time.Now())
	fmt.Printf("%s  %s  %s\n\n", p.AppName, truncateID(p.ID), p.Status)
	fmt.Println(timeline.Render(chart, timelineWidth, -1))
	return nil
}
