package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Abraxas-365/profilejobs/pkg/jobx"
	"github.com/Abraxas-365/profilejobs/pkg/jobx/jobxmemory"
	"github.com/Abraxas-365/profilejobs/pkg/logx"
	"github.com/prometheus/client_golang/prometheus"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type staticHealth jobx.ConnState

func (h staticHealth) State() jobx.ConnState { return jobx.ConnState(h) }

func testServer(t *testing.T, state jobx.ConnState, storageErr error) (*jobxmemory.Queue, *prometheus.Registry, serverDeps) {
	t.Helper()
	prev := logx.GetDefaultLogger()
	logx.SetDefaultLogger(logx.NewLogger(&logx.Config{Level: logx.LevelFatal, Output: discard{}}))
	t.Cleanup(func() { logx.SetDefaultLogger(prev) })

	queue := jobxmemory.New()
	reg := prometheus.NewRegistry()
	return queue, reg, serverDeps{
		Broker:   staticHealth(state),
		Stats:    queue,
		Jobs:     queue,
		Storage:  func(context.Context) error { return storageErr },
		InFlight: func() int64 { return 2 },
		Gatherer: reg,
	}
}

func getJSON(t *testing.T, d serverDeps, path string) (int, map[string]any) {
	t.Helper()
	resp, err := newServer(d).Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("app.Test(%s): %v", path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, body
}

func TestHealth_Ready(t *testing.T) {
	queue, _, d := testServer(t, jobx.StateReady, nil)
	if _, err := queue.Enqueue(context.Background(), jobx.Job{ID: "a:b", Policy: jobx.DefaultRetryPolicy()}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	status, body := getJSON(t, d, "/health")
	if status != 200 || body["status"] != "healthy" || body["broker"] != "ready" {
		t.Fatalf("status %d body %v", status, body)
	}
	queueStats, ok := body["queue"].(map[string]any)
	if !ok || queueStats["waiting"] != float64(1) {
		t.Fatalf("queue = %v", body["queue"])
	}
	if body["in_flight"] != float64(2) || body["storage"] != "healthy" {
		t.Fatalf("body = %v", body)
	}
}

func TestHealth_DegradedWhenBrokerDown(t *testing.T) {
	_, _, d := testServer(t, jobx.StateReconnecting, nil)
	status, body := getJSON(t, d, "/health")
	if status != 503 || body["status"] != "degraded" || body["broker"] != "reconnecting" {
		t.Fatalf("status %d body %v", status, body)
	}
	if _, ok := body["queue"]; ok {
		t.Fatalf("queue stats read while broker down: %v", body)
	}
}

func TestHealth_DegradedWhenStorageFails(t *testing.T) {
	_, _, d := testServer(t, jobx.StateReady, errors.New("bucket gone"))
	status, body := getJSON(t, d, "/health")
	if status != 503 || body["storage"] != "unhealthy" || body["storage_error"] != "bucket gone" {
		t.Fatalf("status %d body %v", status, body)
	}
}

func TestJobStatus(t *testing.T) {
	queue, _, d := testServer(t, jobx.StateReady, nil)
	job := jobx.Job{ID: "alice:octocat", Payload: jobx.Payload{RequesterID: "alice", SubjectKey: "octocat"}, Policy: jobx.DefaultRetryPolicy()}
	if _, err := queue.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	status, body := getJSON(t, d, "/jobs/alice:octocat")
	if status != 200 || body["id"] != "alice:octocat" || body["status"] != "waiting" {
		t.Fatalf("status %d body %v", status, body)
	}

	status, body = getJSON(t, d, "/jobs/nobody:ghost")
	if status != 404 || body["code"] != "JOBX_JOB_NOT_FOUND" {
		t.Fatalf("status %d body %v", status, body)
	}
	if body["request_id"] == "" {
		t.Fatalf("missing request id: %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, reg, d := testServer(t, jobx.StateReady, nil)
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "profilejobs_test_total", Help: "test"}))

	resp, err := newServer(d).Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !strings.Contains(string(raw), "profilejobs_test_total") {
		t.Fatalf("status %d body %s", resp.StatusCode, raw)
	}
}

func TestUnknownRoute(t *testing.T) {
	_, _, d := testServer(t, jobx.StateReady, nil)
	status, body := getJSON(t, d, "/nope")
	if status != 404 || body["code"] != "NOT_FOUND" {
		t.Fatalf("status %d body %v", status, body)
	}
}
