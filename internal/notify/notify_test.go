package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/tbbo-ingest/internal/config"
	"github.com/dgnsrekt/tbbo-ingest/internal/pipeline"
)

type captured struct {
	path, title, priority, tags, auth, body string
}

func newTestServer(t *testing.T, status int, got *captured) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		*got = captured{
			path:     r.URL.Path,
			title:    r.Header.Get("Title"),
			priority: r.Header.Get("Priority"),
			tags:     r.Header.Get("Tags"),
			auth:     r.Header.Get("Authorization"),
			body:     string(data),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func failedResult() *pipeline.Result {
	return &pipeline.Result{
		Total:    5,
		Complete: 1,
		Failed:   4,
		Records:  5000,
		Duration: 90 * time.Second,
		Files: []pipeline.FileResult{
			{ID: "a", Err: errors.New("corrupt frame")},
			{ID: "b", Err: errors.New("rejected")},
			{ID: "c", Err: errors.New("rejected")},
			{ID: "d", Err: errors.New("rejected")},
		},
	}
}

func TestClient_SendSuccess(t *testing.T) {
	var got captured
	server := newTestServer(t, http.StatusOK, &got)

	c := NewClient(config.NotifyConfig{
		Enabled: true, Server: server.URL + "/", Topic: "tbbo", Priority: "default", Tags: "inbox_tray", Token: "tk",
	}, zap.NewNop())

	res := &pipeline.Result{Total: 3, Complete: 3, Skipped: 1, Batches: 20, Records: 19_500, Duration: 61 * time.Second}
	if err := c.SendSuccess(context.Background(), res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.path != "/tbbo" {
		t.Errorf("path = %q", got.path)
	}
	if got.title != "Ingest Complete: 3 files" || got.priority != "default" || got.tags != "inbox_tray,white_check_mark" {
		t.Errorf("unexpected headers %+v", got)
	}
	if got.auth != "Bearer tk" {
		t.Errorf("Authorization = %q", got.auth)
	}
	for _, want := range []string{"Ingested: 2", "Already complete: 1", "Records: 19500", "Duration: 1m1s"} {
		if !strings.Contains(got.body, want) {
			t.Errorf("body missing %q:\n%s", want, got.body)
		}
	}
}

func TestClient_SendFailureUsesHighPriority(t *testing.T) {
	var got captured
	server := newTestServer(t, http.StatusOK, &got)

	c := NewClient(config.NotifyConfig{Enabled: true, Server: server.URL, Topic: "tbbo", Priority: "low", Tags: "inbox_tray"}, zap.NewNop())
	if err := c.SendFailure(context.Background(), failedResult(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.priority != "high" || got.title != "Ingest Failed: 4 of 5 files" {
		t.Errorf("unexpected headers %+v", got)
	}
	if !strings.Contains(got.body, "- a: corrupt frame") || !strings.Contains(got.body, "... and 1 more errors") {
		t.Errorf("unexpected body:\n%s", got.body)
	}
	if got.auth != "" {
		t.Errorf("no token configured, got Authorization %q", got.auth)
	}
}

func TestClient_ServerError(t *testing.T) {
	var got captured
	server := newTestServer(t, http.StatusForbidden, &got)

	c := NewClient(config.NotifyConfig{Enabled: true, Server: server.URL, Topic: "tbbo"}, zap.NewNop())
	if err := c.SendSuccess(context.Background(), &pipeline.Result{}); err == nil {
		t.Error("expected error for 403")
	}
}

func TestClient_DisabledSendsNothing(t *testing.T) {
	var got captured
	server := newTestServer(t, http.StatusOK, &got)

	c := NewClient(config.NotifyConfig{Enabled: false, Server: server.URL, Topic: "tbbo"}, zap.NewNop())
	if err := c.SendFailure(context.Background(), failedResult(), nil); err != nil {
		t.Fatal(err)
	}
	if got.path != "" {
		t.Error("disabled client made a request")
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(config.NotifyConfig{}, zap.NewNop()).(*NoopNotifier); !ok {
		t.Error("disabled config should give a NoopNotifier")
	}
	if _, ok := New(config.NotifyConfig{Enabled: true, Topic: "x"}, zap.NewNop()).(*Client); !ok {
		t.Error("enabled config should give a Client")
	}
}

type recordingNotifier struct{ success, failure int }

func (r *recordingNotifier) SendSuccess(context.Context, *pipeline.Result) error { r.success++; return nil }
func (r *recordingNotifier) SendFailure(context.Context, *pipeline.Result, error) error {
	r.failure++
	return nil
}

func TestReport(t *testing.T) {
	n := &recordingNotifier{}
	_ = Report(context.Background(), n, &pipeline.Result{Total: 1, Complete: 1}, nil)
	_ = Report(context.Background(), n, &pipeline.Result{Total: 1, Complete: 1}, context.Canceled)
	_ = Report(context.Background(), n, failedResult(), nil)
	if n.success != 1 || n.failure != 2 {
		t.Errorf("success=%d failure=%d", n.success, n.failure)
	}
}

func TestFormatFailureMessageIncludesRunError(t *testing.T) {
	msg := FormatFailureMessage(&pipeline.Result{Total: 2, Pending: 1, Interrupted: 1}, context.Canceled)
	if !strings.Contains(msg, "Error: context canceled") || !strings.Contains(msg, "Pending: 1") {
		t.Errorf("unexpected message:\n%s", msg)
	}
}
