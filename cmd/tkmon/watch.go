package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
	"github.com/cmxela/thinkube-cicd-monitor/internal/history"
	"github.com/cmxela/thinkube-cicd-monitor/internal/kubewatch"
	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
	"github.com/cmxela/thinkube-cicd-monitor/internal/notify"
	"github.com/cmxela/thinkube-cicd-monitor/internal/reconcile"
	"github.com/cmxela/thinkube-cicd-monitor/internal/stream"
	"github.com/cmxela/thinkube-cicd-monitor/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch pipelines in an interactive TUI",
	RunE:  runWatch,
}

var (
	watchKube      bool
	watchNamespace string
)

func init() {
	watchCmd.Flags().BoolVar(&watchKube, "kube", false, "Consume events from Kubernetes ConfigMaps instead of the websocket stream")
	watchCmd.Flags().StringVar(&watchNamespace, "namespace", kubewatch.DefaultNamespace, "Namespace holding event ConfigMaps (with --kube)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	notifier := notify.New(notify.ParseLevel(cfg.Notifications.Level), cfg.Notifications.Enabled)
	client := api.New(cfg.API.URL, cfg.API.Token, notifier)
	rec := reconcile.New()

	archive, err := history.Open(cfg.History.Path)
	if err != nil {
		logrus.WithError(err).Warn("History archive unavailable, metrics are limited to this session")
		archive = nil
	} else {
		defer archive.Close()
	}

	rec.OnTerminal = func(p models.Pipeline) {
		if archive != nil {
			if err := archive.Record(p); err != nil {
				logrus.WithError(err).Warn("Failed to archive pipeline")
			}
		}
		switch p.Status {
		case models.PipelineStatusFailed:
			notifier.Failuref("Pipeline %s failed: %s", p.AppName, p.FailureReason())
		case models.PipelineStatusSucceeded:
			notifier.Infof("Pipeline %s succeeded", p.AppName)
		}
	}

	tracker := stream.NewTracker(client, notifier, func(e models.PipelineEvent) {
		rec.IngestEvent(e)
	})
	defer tracker.Close()

	if watchKube {
		clientset, err := kubewatch.NewClientset(cfg.Kubeconfig)
		if err != nil {
			return fmt.Errorf("set up kubernetes transport: %w", err)
		}
		watcher := kubewatch.New(clientset, kubewatch.Options{Namespace: watchNamespace}, func(e models.PipelineEvent) {
			rec.IngestEvent(e)
		})
		watcher.Start()
		defer watcher.Stop()
	} else {
		tracker.ConnectGlobal()
	}

	app := tui.New(tui.Options{
		Client:          client,
		Reconciler:      rec,
		Tracker:         tracker,
		Notifier:        notifier,
		RefreshInterval: cfg.RefreshInterval,
	})
	return app.Run()
}
