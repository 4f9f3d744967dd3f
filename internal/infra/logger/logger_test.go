package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestConfigureProductionUsesJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logrus.New()
	Configure(l, &buf, "debug", "production")

	l.WithField("monitor_id", "m1").Debug("tick")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if line["monitor_id"] != "m1" || line["level"] != "debug" {
		t.Fatalf("line = %v", line)
	}
}

func TestConfigureInvalidLevelFallsBackToInfo(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logrus.New()
	Configure(l, &buf, "chatty", "development")

	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %s, want info", l.GetLevel())
	}
	if !strings.Contains(buf.String(), "Invalid log level") {
		t.Fatalf("missing warning in %q", buf.String())
	}
}
