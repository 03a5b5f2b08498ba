package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("warn", &buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	l.Info("hidden")
	l.WithField("port", 8000).Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected info line to be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "port=8000") {
		t.Errorf("expected warn line with fields, got %q", out)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New("loud", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown level")
	}
}
