package stream

import (
	"sort"
	"sync"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
	"github.com/cmxela/thinkube-cicd-monitor/internal/notify"
)

// Tracker owns one push channel per pipeline of interest, plus the
// global multiplexed events channel when the backend supports it.
type Tracker struct {
	client   *api.Client
	notifier *notify.Notifier
	handler  func(models.PipelineEvent)

	mu      sync.Mutex
	sockets map[string]*Socket
	global  *Socket
	closed  bool
}

// NewTracker creates a tracker that delivers every received event to
// handler. The notifier may be nil.
func NewTracker(client *api.Client, notifier *notify.Notifier, handler func(models.PipelineEvent)) *Tracker {
	return &Tracker{
		client:   client,
		notifier: notifier,
		handler:  handler,
		sockets:  make(map[string]*Socket),
	}
}

// Track opens a push channel for one pipeline. Tracking an id that is
// already tracked is a no-op.
func (t *Tracker) Track(id string) {
	if id == "" {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if _, ok := t.sockets[id]; ok {
		t.mu.Unlock()
		return
	}
	s := NewSocket(t.client.StreamURL(id), t.client.AuthHeader(), FixedPolicy(), t.stamped(id))
	t.sockets[id] = s
	t.mu.Unlock()

	s.Connect()
}

// Untrack closes and forgets the channel for one pipeline.
func (t *Tracker) Untrack(id string) {
	t.mu.Lock()
	s, ok := t.sockets[id]
	delete(t.sockets, id)
	t.mu.Unlock()

	if ok {
		s.Close()
	}
}

// stamped fills in the pipeline id on events that arrive without one.
// A per-pipeline channel only carries events for its own pipeline, so
// the channel itself identifies minimal messages that omit the id.
func (t *Tracker) stamped(id string) func(models.PipelineEvent) {
	return func(e models.PipelineEvent) {
		if e.PipelineID == "" {
			e.PipelineID = id
		}
		if t.handler != nil {
			t.handler(e)
		}
	}
}

// ConnectGlobal opens the multiplexed events channel. Reconnects back
// off with consecutive failures and eventually give up with a single
// user-visible warning.
func (t *Tracker) ConnectGlobal() {
	t.mu.Lock()
	if t.closed || t.global != nil {
		t.mu.Unlock()
		return
	}
	s := NewSocket(t.client.StreamURL(""), t.client.AuthHeader(), ScaledPolicy(), t.handler)
	s.OnAbandon = func() {
		if t.notifier != nil {
			t.notifier.WarnOnce("stream",
				"Live updates unavailable: gave up reconnecting to the event stream")
		}
	}
	t.global = s
	t.mu.Unlock()

	s.Connect()
}

// Tracked returns the pipeline IDs with an open or pending channel,
// sorted for stable display.
func (t *Tracker) Tracked() []string {
	t.mu.Lock()
	ids := make([]string, 0, len(t.sockets))
	for id := range t.sockets {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Close tears down every channel, the global one included. Idempotent.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	sockets := make([]*Socket, 0, len(t.sockets)+1)
	for _, s := range t.sockets {
		sockets = append(sockets, s)
	}
	t.sockets = make(map[string]*Socket)
	if t.global != nil {
		sockets = append(sockets, t.global)
		t.global = nil
	}
	t.mu.Unlock()

	for _, s := range sockets {
		s.Close()
	}
}
