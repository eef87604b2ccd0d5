package http

import (
	"bytes"
	"net/http"
	"testing"
)

func TestStageRejectsInvalidPayload(t *testing.T) {
	server, _ := newTestServer(t)

	resp := stage(t, server, `{"kind":"mock"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestAbandonAndReportRoutes(t *testing.T) {
	server, scorer := newTestServer(t)
	stage(t, server, samplePayload)

	resp, err := http.Post(server.URL+"/competitions/c-1/reports", "application/json",
		bytes.NewBufferString(`{"questionId":"m1","description":"typo"}`))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before the competition is opened, got %d", resp.StatusCode)
	}

	conn := dial(t, server, "c-1")
	readUntil(t, conn, "view")

	resp, err = http.Post(server.URL+"/competitions/c-1/reports", "application/json",
		bytes.NewBufferString(`{"questionId":"m1","description":"typo"}`))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if len(scorer.Reports()) != 1 {
		t.Fatalf("expected report relayed")
	}

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/competitions/c-1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	readUntil(t, conn, "abandoned")
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
