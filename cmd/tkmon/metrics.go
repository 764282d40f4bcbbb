package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
	"github.com/cmxela/thinkube-cicd-monitor/internal/history"
	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show pipeline success metrics",
	RunE:  runMetrics,
}

var (
	metricsApp    string
	metricsPeriod string
)

func init() {
	metricsCmd.Flags().StringVar(&metricsApp, "app", "", "Application name")
	metricsCmd.Flags().StringVar(&metricsPeriod, "period", "7d", "Aggregation period (e.g. 24h, 7d, 30d)")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	period, err := parsePeriod(metricsPeriod)
	if err != nil {
		return err
	}
	since := time.Now().Add(-period)

	client := newClient()
	ctx, cancel := context.WithTimeout(cmd.Context(), api.DefaultTimeout)
	defer cancel()

	if m, err := client.GetMetrics(ctx, metricsApp, metricsPeriod); err == nil {
		printMetrics("Control plane", *m)
	} else {
		logrus.WithError(err).Debug("Control-plane metrics unavailable")
		fmt.Println("Control-plane metrics unavailable")
	}

	archive, err := history.Open(cfg.History.Path)
	if err != nil {
		logrus.WithError(err).Debug("History archive unavailable")
		return nil
	}
	defer archive.Close()

	local, err := archive.Metrics(metricsApp, since)
	if err != nil {
		return err
	}
	fmt.Println()
	printMetrics("Local archive", local)
	return nil
}

func printMetrics(source string, m models.Metrics) {
	scope := m.AppName
	if scope == "" {
		scope = "all applications"
	}
	fmt.Printf("%s (%s, last %s)\n", source, scope, metricsPeriod)
	fmt.Printf("  Total runs:    %d\n", m.TotalRuns)
	fmt.Printf("  Succeeded:     %d\n", m.SucceededRuns)
	fmt.Printf("  Failed:        %d\n", m.FailedRuns)
	fmt.Printf("  Success rate:  %.1f%%\n", m.SuccessRate)
	if m.AvgDuration > 0 {
		fmt.Printf("  Avg duration:  %s\n", m.AvgDuration.Truncate(time.Second))
	}
	if len(m.FailureReasons) > 0 {
		fmt.Println("  Failure reasons:")
		for reason, count := range m.FailureReasons {
			fmt.Printf("    %dx %s\n", count, reason)
		}
	}
}

// parsePeriod accepts Go durations plus a day suffix, so "7d" works.
func parsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid period %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid period %q", s)
	}
	return d, nil
}
