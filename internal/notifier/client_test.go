package notifier

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func TestNotify(t *testing.T) {
	var gotTitle, gotPriority, gotBody, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&Config{
		URL:    server.URL,
		Topic:  "taskops",
		Logger: testLogger(),
	})

	err := client.Notify(context.Background(), "Task Error: pfsense.tasks.sync_dhcp_routes", "connection refused", PriorityHigh)
	if err != nil {
		t.Fatalf("Notify() failed: %v", err)
	}

	if gotPath != "/taskops" {
		t.Errorf("Expected path /taskops, got %s", gotPath)
	}
	if gotTitle != "Task Error: pfsense.tasks.sync_dhcp_routes" {
		t.Errorf("Unexpected title: %s", gotTitle)
	}
	if gotPriority != PriorityHigh {
		t.Errorf("Expected priority high, got %s", gotPriority)
	}
	if gotBody != "connection refused" {
		t.Errorf("Unexpected body: %s", gotBody)
	}
}

func TestNotify_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(&Config{
		URL:    server.URL,
		Topic:  "taskops",
		Logger: testLogger(),
	})

	if err := client.Notify(context.Background(), "title", "message", PriorityLow); err == nil {
		t.Error("Expected error for non-2xx response")
	}
}

func TestNotify_NilClient(t *testing.T) {
	var client *Client
	if err := client.Notify(context.Background(), "title", "message", PriorityLow); err != nil {
		t.Errorf("Nil client should drop notifications without error, got %v", err)
	}
}
