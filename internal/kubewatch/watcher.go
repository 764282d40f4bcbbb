// Package kubewatch consumes pipeline events published as Kubernetes
// ConfigMaps, the transport used by backend versions that cannot push
// over the websocket channel.
package kubewatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

const (
	// eventsKey is the ConfigMap data key holding the JSON event batch.
	eventsKey = "events.json"

	// DefaultNamespace is where the backend publishes event ConfigMaps.
	DefaultNamespace = "cicd-monitor"

	// relistDelay is the pause before starting a fresh list+watch cycle
	// after the watch channel closes or fails.
	relistDelay = 5 * time.Second
)

// Options narrow which event ConfigMaps the watcher consumes.
type Options struct {
	// Namespace holding the event ConfigMaps. Defaults to
	// DefaultNamespace when empty.
	Namespace string

	// Rotation restricts the watch to "active" or "archived" batches.
	// Empty consumes both.
	Rotation string

	// Pipeline restricts the watch to a single pipeline ID.
	Pipeline string
}

func (o Options) selector() string {
	set := labels.Set{"app": "cicd-monitor", "component": "events"}
	if o.Rotation != "" {
		set["rotation"] = o.Rotation
	}
	if o.Pipeline != "" {
		set["pipeline"] = o.Pipeline
	}
	return set.String()
}

// Handler receives each pipeline event once, in the order it appeared
// inside its ConfigMap.
type Handler func(models.PipelineEvent)

// Watcher lists and watches event ConfigMaps and forwards the pipeline
// events embedded in them. Batches are append-only, so the watcher
// remembers which events it has already forwarded per ConfigMap and
// delivers only new ones across modifications and relists.
type Watcher struct {
	client kubernetes.Interface

	opts     Options
	selector string
	handler  Handler

	mu        sync.Mutex
	delivered map[string]map[string]struct{}

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// relist is the pause between watch cycles, shortened in tests.
	relist time.Duration
}

// New creates a watcher over the given clientset. The handler must not
// be nil.
func New(client kubernetes.Interface, opts Options, handler Handler) *Watcher {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		client:    client,
		opts:      opts,
		selector:  opts.selector(),
		handler:   handler,
		delivered: make(map[string]map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		relist:    relistDelay,
	}
}

// Start begins the list+watch loop in the background.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
	logrus.Infof("Watching event ConfigMaps in %s (%s)", w.opts.Namespace, w.selector)
}

// Stop cancels the loop and waits for it to exit. Safe to call more
// than once.
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		if err := w.watchOnce(); err != nil && w.ctx.Err() == nil {
			logrus.Warnf("Event ConfigMap watch interrupted: %v", err)
		}
		select {
		case <-w.ctx.Done():
			return
		case <-time.After(w.relist):
		}
	}
}

// watchOnce runs one list+watch cycle. It returns nil when the watch
// channel closes normally; the caller relists after a delay either way.
func (w *Watcher) watchOnce() error {
	cms := w.client.CoreV1().ConfigMaps(w.opts.Namespace)

	list, err := cms.List(w.ctx, metav1.ListOptions{LabelSelector: w.selector})
	if err != nil {
		return fmt.Errorf("list event configmaps: %w", err)
	}
	sort.Slice(list.Items, func(i, j int) bool {
		return list.Items[i].Name < list.Items[j].Name
	})
	for i := range list.Items {
		w.deliver(&list.Items[i])
	}

	watcher, err := cms.Watch(w.ctx, metav1.ListOptions{
		LabelSelector:   w.selector,
		ResourceVersion: list.ResourceVersion,
	})
	if err != nil {
		return fmt.Errorf("watch event configmaps: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return nil
		case event, open := <-watcher.ResultChan():
			if !open {
				return nil
			}
			switch event.Type {
			case watch.Added, watch.Modified:
				if cm, ok := event.Object.(*corev1.ConfigMap); ok {
					w.deliver(cm)
				}
			case watch.Deleted:
				if cm, ok := event.Object.(*corev1.ConfigMap); ok {
					w.forget(cm.Name)
				}
			case watch.Error:
				return fmt.Errorf("error with watch connection")
			}
		}
	}
}

func (w *Watcher) deliver(cm *corev1.ConfigMap) {
	raw, ok := cm.Data[eventsKey]
	if !ok || raw == "" {
		return
	}
	events, err := api.DecodeEvents([]byte(raw))
	if err != nil {
		logrus.Debugf("Dropping malformed event batch in ConfigMap %s/%s: %v", cm.Namespace, cm.Name, err)
		return
	}
	for _, e := range w.fresh(cm.Name, events) {
		w.handler(e)
	}
}

// fresh filters out events already forwarded for this ConfigMap and
// marks the rest as delivered.
func (w *Watcher) fresh(name string, events []models.PipelineEvent) []models.PipelineEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	seen := w.delivered[name]
	if seen == nil {
		seen = make(map[string]struct{})
		w.delivered[name] = seen
	}

	var out []models.PipelineEvent
	for _, e := range events {
		key := eventKey(e)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

// forget drops delivery state for a deleted ConfigMap so a reused name
// starts clean.
func (w *Watcher) forget(name string) {
	w.mu.Lock()
	delete(w.delivered, name)
	w.mu.Unlock()
}

func eventKey(e models.PipelineEvent) string {
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("%s|%s|%d", e.PipelineID, e.RawType, e.Timestamp.UnixNano())
}

// NewClientset builds a Kubernetes clientset for the given kubeconfig
// path. An empty path tries in-cluster config first and then the
// default kubeconfig location.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	cfg, err := buildConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes client: %w", err)
	}
	return client, nil
}

func buildConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			return cfg, nil
		}
		kubeconfig = clientcmd.RecommendedHomeFile
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}
