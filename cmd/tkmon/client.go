package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
	"github.com/cmxela/thinkube-cicd-monitor/internal/notify"
)

func newClient() *api.Client {
	notifier := notify.New(notify.ParseLevel(cfg.Notifications.Level), cfg.Notifications.Enabled)
	return api.New(cfg.API.URL, cfg.API.Token, notifier)
}

// fetchFullPipeline loads a pipeline with its event sequence, falling
// back to the legacy events endpoint when the snapshot carries none.
func fetchFullPipeline(ctx context.Context, client *api.Client, id string) (*models.Pipeline, error) {
	p, err := client.GetPipeline(ctx, id)
	if errors.Is(err, api.ErrNotFound) {
		return nil, fmt.Errorf("pipeline %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if len(p.Events) == 0 {
		if events, err := client.GetPipelineEvents(ctx, id); err == nil {
			p.Events = events
		}
	}
	return p, nil
}
