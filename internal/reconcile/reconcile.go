// Package reconcile holds the in-memory authority for pipeline state.
// Snapshots from the transport client and events from the push channels
// both land here; everything the UI shows is read back out of this
// cache.
package reconcile

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

// ErrUnknownPipeline is returned for queries on uncached pipeline IDs.
var ErrUnknownPipeline = errors.New("pipeline not in cache")

// defaultCacheLimit bounds the cache; the oldest runs are evicted past it.
const defaultCacheLimit = 200

// Reconciler caches pipelines by ID and derives their aggregate state.
type Reconciler struct {
	mu        sync.RWMutex
	pipelines map[string]*models.Pipeline
	limit     int
	changed   chan struct{}

	// OnTerminal, when set, is invoked with a copy of each pipeline the
	// moment it first reaches a terminal status. It runs outside the
	// cache lock and must not call back into the reconciler.
	OnTerminal func(models.Pipeline)
}

// New creates an empty reconciler with the default cache bound.
func New() *Reconciler {
	return &Reconciler{
		pipelines: make(map[string]*models.Pipeline),
		limit:     defaultCacheLimit,
		changed:   make(chan struct{}, 1),
	}
}

// Changed returns a channel that receives a signal after each mutation.
// Signals coalesce, so a slow reader sees at least one.
func (r *Reconciler) Changed() <-chan struct{} {
	return r.changed
}

// IngestSnapshot upserts a pipeline fetched from the transport client.
// The snapshot's fields replace the cached ones wholesale, except that
// an already-frozen endTime and duration never regress.
func (r *Reconciler) IngestSnapshot(p models.Pipeline) {
	if p.ID == "" {
		return
	}

	r.mu.Lock()
	existing := r.pipelines[p.ID]
	wasTerminal := existing != nil && existing.Status.IsTerminal()

	if existing != nil && existing.EndTime != nil && p.EndTime == nil {
		p.EndTime = existing.EndTime
		p.Duration = existing.Duration
	}

	stored := p
	r.pipelines[p.ID] = &stored
	r.evictLocked()

	var terminal *models.Pipeline
	if !wasTerminal && stored.Status.IsTerminal() {
		cp := stored
		terminal = &cp
	}
	r.mu.Unlock()

	r.fireTerminal(terminal)
	r.notifyChanged()
}

// IngestEvent applies one push-channel event to its cached pipeline and
// reports whether it was applied. Events for unknown pipelines are
// dropped; the next snapshot poll repairs the gap.
func (r *Reconciler) IngestEvent(e models.PipelineEvent) bool {
	if e.PipelineID == "" {
		logrus.Debug("Dropping event without pipeline id")
		return false
	}

	r.mu.Lock()
	p, ok := r.pipelines[e.PipelineID]
	if !ok {
		r.mu.Unlock()
		logrus.WithField("pipeline", e.PipelineID).Debug("Dropping event for unknown pipeline")
		return false
	}

	wasTerminal := p.Status.IsTerminal()
	p.Events = append(p.Events, e)
	p.Status = computeStatus(p.Events)

	if e.Type.IsTerminal() && p.EndTime == nil {
		end := e.Timestamp
		p.EndTime = &end
		if !p.StartTime.IsZero() {
			d := end.Sub(p.StartTime)
			p.Duration = &d
		}
	}

	var terminal *models.Pipeline
	if !wasTerminal && p.Status.IsTerminal() {
		cp := *p
		terminal = &cp
	}
	r.mu.Unlock()

	r.fireTerminal(terminal)
	r.notifyChanged()
	return true
}

// computeStatus derives pipeline status from the event sequence alone.
// Any recorded failure pins the status to Failed regardless of later
// events; otherwise the most recent event decides.
func computeStatus(events []models.PipelineEvent) models.PipelineStatus {
	if len(events) == 0 {
		return models.PipelineStatusPending
	}
	for _, e := range events {
		if e.IsFailure() {
			return models.PipelineStatusFailed
		}
	}
	if events[len(events)-1].Type == models.EventDeployComplete {
		return models.PipelineStatusSucceeded
	}
	return models.PipelineStatusRunning
}

// Get returns a copy of the cached pipeline.
func (r *Reconciler) Get(id string) (models.Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[id]
	if !ok {
		return models.Pipeline{}, false
	}
	return *p, true
}

// ActivePipelines returns pipelines that are pending or running, most
// recent first.
func (r *Reconciler) ActivePipelines() []models.Pipeline {
	r.mu.RLock()
	out := make([]models.Pipeline, 0, len(r.pipelines))
	for _, p := range r.pipelines {
		if p.Status == models.PipelineStatusRunning || p.Status == models.PipelineStatusPending {
			out = append(out, *p)
		}
	}
	r.mu.RUnlock()

	sortByStartDesc(out)
	return out
}

// RecentPipelines returns up to limit cached pipelines, most recent
// first with ties broken by ID so the order is deterministic.
func (r *Reconciler) RecentPipelines(limit int) []models.Pipeline {
	r.mu.RLock()
	out := make([]models.Pipeline, 0, len(r.pipelines))
	for _, p := range r.pipelines {
		out = append(out, *p)
	}
	r.mu.RUnlock()

	sortByStartDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortByStartDesc(ps []models.Pipeline) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].StartTime.Equal(ps[j].StartTime) {
			return ps[i].StartTime.After(ps[j].StartTime)
		}
		return ps[i].ID < ps[j].ID
	})
}

// evictLocked drops the oldest runs once the cache exceeds its bound.
func (r *Reconciler) evictLocked() {
	for len(r.pipelines) > r.limit {
		oldestID := ""
		var oldest time.Time
		for id, p := range r.pipelines {
			if oldestID == "" || p.StartTime.Before(oldest) {
				oldestID = id
				oldest = p.StartTime
			}
		}
		delete(r.pipelines, oldestID)
	}
}

func (r *Reconciler) fireTerminal(p *models.Pipeline) {
	if p == nil {
		return
	}
	r.mu.RLock()
	hook := r.OnTerminal
	r.mu.RUnlock()
	if hook != nil {
		hook(*p)
	}
}

func (r *Reconciler) notifyChanged() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}
