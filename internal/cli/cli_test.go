package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"competition-session-service/internal/config"
)

func TestValidatePrintsTabs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")
	payload := `{"kind":"competition","competitionId":7,"name":"Finals","totalTimeMinutes":20,
		"selectedCourses":["CHM","BIO"],
		"questions":[{"id":1,"courseCode":"BIO","options":["a","b"]},{"id":2,"courseCode":"CHM","options":["a"]}]}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	cmd := NewValidateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "competition 7 (Finals): 2 questions, 20 minutes") {
		t.Fatalf("unexpected header %q", got)
	}
	if strings.Index(got, "CHM") > strings.Index(got, "BIO") {
		t.Fatalf("expected tabs in selected course order, got %q", got)
	}
}

func TestValidateRejectsBadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")
	if err := os.WriteFile(path, []byte(`{"kind":"mock"}`), 0o600); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	cmd := NewValidateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestProgressStoreRequiresBackendConnection(t *testing.T) {
	var cfg config.Config
	cfg.Progress.Backend = "redis"
	if _, err := progressStore(cfg, nil, nil); err == nil {
		t.Fatalf("expected error without redis client")
	}
	cfg.Progress.Backend = "floppy"
	if _, err := progressStore(cfg, nil, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	cfg.Progress.Backend = "memory"
	if _, err := progressStore(cfg, nil, nil); err != nil {
		t.Fatalf("memory backend: %v", err)
	}
}
