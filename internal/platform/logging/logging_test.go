package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "production", "info")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("member removed", zap.String("org_id", "org1"))
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if line["msg"] != "member removed" || line["org_id"] != "org1" {
		t.Errorf("line = %v", line)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "development", "warn")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("hidden")
	log.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("output = %q", out)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "development", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
