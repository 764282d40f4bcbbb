package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
	"github.com/cmxela/thinkube-cicd-monitor/internal/notify"
)

func TestListPipelines_NormalizesFieldSkew(t *testing.T) {
	// One entry per backend generation: camel-case with RFC3339
	// timestamps, snake-case with epoch seconds.
	response := []map[string]interface{}{
		{
			"id":        "p-legacy",
			"app_name":  "webapp",
			"status":    "SUCCEEDED",
			"startTime": float64(1755690000),
			"endTime":   float64(1755690120),
		},
		{
			"id":        "p-new",
			"appName":   "webapp",
			"status":    "Running",
			"startedAt": "2026-08-20T10:00:00Z",
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pipelines" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(response)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := api.New(srv.URL, "", nil)
	pipelines := client.ListPipelines(context.Background(), api.ListOptions{App: "webapp"})

	if len(pipelines) != 2 {
		t.Fatalf("expected 2 pipelines, got %d", len(pipelines))
	}
	// Most recent first regardless of response order.
	if pipelines[0].ID != "p-new" {
		t.Errorf("expected p-new first, got %s", pipelines[0].ID)
	}

	legacy := pipelines[1]
	if legacy.AppName != "webapp" {
		t.Errorf("expected app_name fallback, got %q", legacy.AppName)
	}
	if legacy.Status != models.PipelineStatusSucceeded {
		t.Errorf("expected succeeded after case folding, got %s", legacy.Status)
	}
	if legacy.StartTime.Unix() != 1755690000 {
		t.Errorf("expected epoch start time, got %v", legacy.StartTime)
	}
	if legacy.Duration == nil || *legacy.Duration != 2*time.Minute {
		t.Errorf("expected computed 2m duration, got %v", legacy.Duration)
	}
}

func TestListPipelines_AuthFailureWarnsOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	notifier := notify.New(notify.LevelAll, true)
	var warnings []notify.Notification
	notifier.SetSink(func(n notify.Notification) { warnings = append(warnings, n) })

	client := api.New(srv.URL, "tk-expired", notifier)
	for i := 0; i < 3; i++ {
		if got := client.ListPipelines(context.Background(), api.ListOptions{}); len(got) != 0 {
			t.Fatalf("expected empty list on auth failure, got %d entries", len(got))
		}
	}
	if len(warnings) != 1 {
		t.Errorf("expected a single auth warning across retries, got %d", len(warnings))
	}
}

func TestGetPipeline_NotFoundAndUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pipelines/missing":
			http.NotFound(w, r)
		case "/pipelines/secret":
			http.Error(w, "nope", http.StatusUnauthorized)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := api.New(srv.URL, "", nil)

	if _, err := client.GetPipeline(context.Background(), "missing"); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := client.GetPipeline(context.Background(), "secret"); !errors.Is(err, api.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGetPipeline_NormalizesStagesAndEvents(t *testing.T) {
	response := map[string]interface{}{
		"id":        "p1",
		"appName":   "webapp",
		"status":    "failed",
		"startedAt": "2026-08-20T10:00:00Z",
		"stages": []map[string]interface{}{
			{
				"id":          "s1",
				"stageName":   "Build Image",
				"component":   "kaniko",
				"status":      "Succeeded",
				"startedAt":   "2026-08-20T10:00:00Z",
				"completedAt": "2026-08-20T10:03:00Z",
			},
			{
				"id": "s2",
				// A completion stamp on a running stage is skew and
				// must not survive normalization.
				"name":        "Deploy",
				"status":      "running",
				"startedAt":   "2026-08-20T10:03:00Z",
				"completedAt": "2026-08-20T10:04:00Z",
			},
		},
		"events": []map[string]interface{}{
			{
				"id":        "e1",
				"event_type": "BUILD_FAILED",
				"timestamp": float64(1755690050),
				"reason":    "exit code 2",
			},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer srv.Close()

	client := api.New(srv.URL, "", nil)
	p, err := client.GetPipeline(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.DetailLoaded {
		t.Error("expected DetailLoaded after a detail fetch")
	}
	if len(p.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(p.Stages))
	}

	build := p.Stages[0]
	if build.Name != "Build Image" {
		t.Errorf("expected stageName fallback, got %q", build.Name)
	}
	if build.CompletedAt == nil {
		t.Fatal("expected completedAt on terminal stage")
	}
	if build.Duration == nil || *build.Duration != 3*time.Minute {
		t.Errorf("expected computed 3m stage duration, got %v", build.Duration)
	}

	deploy := p.Stages[1]
	if deploy.Name != "Deploy" {
		t.Errorf("expected newer name field preferred, got %q", deploy.Name)
	}
	if deploy.CompletedAt != nil {
		t.Error("expected completedAt dropped on non-terminal stage")
	}

	if len(p.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(p.Events))
	}
	ev := p.Events[0]
	if ev.Type != models.EventBuildFailed {
		t.Errorf("expected build-failed after mapping, got %s", ev.Type)
	}
	if ev.RawType != "BUILD_FAILED" {
		t.Errorf("expected raw type preserved, got %q", ev.RawType)
	}
	if ev.PipelineID != "p1" {
		t.Errorf("expected pipeline id inherited, got %q", ev.PipelineID)
	}
	if ev.Reason != "exit code 2" {
		t.Errorf("expected reason preserved, got %q", ev.Reason)
	}
}

func TestBearerAttachment(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	api.New(srv.URL, "tk-secret", nil).ListPipelines(context.Background(), api.ListOptions{})
	api.New(srv.URL, "not-a-token", nil).ListPipelines(context.Background(), api.ListOptions{})
	api.New(srv.URL, "", nil).ListPipelines(context.Background(), api.ListOptions{})

	if len(got) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(got))
	}
	if got[0] != "Bearer tk-secret" {
		t.Errorf("expected bearer header for prefixed token, got %q", got[0])
	}
	if got[1] != "" {
		t.Errorf("expected no header for malformed token, got %q", got[1])
	}
	if got[2] != "" {
		t.Errorf("expected no header without token, got %q", got[2])
	}
}

func TestTestConnection(t *testing.T) {
	t.Run("healthy backend", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				w.Write([]byte(`{"ok":true}`))
				return
			}
			http.NotFound(w, r)
		}))
		defer srv.Close()

		if !api.New(srv.URL, "", nil).TestConnection(context.Background()) {
			t.Error("expected healthy backend to be reachable")
		}
	})

	t.Run("unauthorized fallback still reachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "auth required", http.StatusUnauthorized)
		}))
		defer srv.Close()

		if !api.New(srv.URL, "", nil).TestConnection(context.Background()) {
			t.Error("expected 401 on fallback path to count as reachable")
		}
	})

	t.Run("dead backend", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		if api.New(srv.URL, "", nil).TestConnection(context.Background()) {
			t.Error("expected closed backend to be unreachable")
		}
	})
}

func TestTriggerBuild(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/events" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := api.New(srv.URL, "tk-secret", nil)
	err := client.TriggerBuild(context.Background(), api.TriggerRequest{
		AppName: "webapp",
		Branch:  "main",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if body["app_name"] != "webapp" {
		t.Errorf("expected app_name in payload, got %v", body["app_name"])
	}
	if body["eventType"] != "build-requested" {
		t.Errorf("expected build-requested event, got %v", body["eventType"])
	}
	if id, _ := body["id"].(string); id == "" {
		t.Error("expected a generated event id")
	}
	details, _ := body["details"].(map[string]interface{})
	if details["branch"] != "main" {
		t.Errorf("expected branch detail, got %v", details)
	}

	if err := client.TriggerBuild(context.Background(), api.TriggerRequest{}); err == nil {
		t.Error("expected error without app name")
	}
}

func TestGetMetrics_ComputesMissingRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"app_name":        "webapp",
			"total_runs":      4,
			"succeeded_runs":  3,
			"failed_runs":     1,
			"avg_duration":    90.0,
			"failure_reasons": map[string]int{"exit code 2": 1},
		})
	}))
	defer srv.Close()

	m, err := api.New(srv.URL, "", nil).GetMetrics(context.Background(), "webapp", "24h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.SuccessRate != 75 {
		t.Errorf("expected computed 75%% success rate, got %v", m.SuccessRate)
	}
	if m.AvgDuration != 90*time.Second {
		t.Errorf("expected 90s average duration, got %v", m.AvgDuration)
	}
	if m.Period != "24h" {
		t.Errorf("expected requested period echoed, got %q", m.Period)
	}
	if m.FailureReasons["exit code 2"] != 1 {
		t.Errorf("expected failure reason histogram, got %v", m.FailureReasons)
	}
}
