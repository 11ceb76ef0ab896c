package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelsAndAudit(t *testing.T) {
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.log")
	logPath := filepath.Join(dir, "app.log")

	var console bytes.Buffer
	l, err := New("info", logPath, auditPath, WithConsole(&console), WithJSON())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Debug("hidden %d", 1)
	l.Info("created record %s", "sub-1")
	l.Warn("reconcile: skipping record %s", "sub-2")
	l.Audit("record_created", map[string]interface{}{"id": "sub-1"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	out := console.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message should be filtered at info level: %s", out)
	}
	if !strings.Contains(out, "created record sub-1") || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("unexpected console output: %s", out)
	}

	file, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(file), "created record sub-1") {
		t.Errorf("log file missing info line: %s", file)
	}

	audit, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatal(err)
	}
	a := string(audit)
	if strings.Contains(a, "created record") {
		t.Errorf("info should not reach the audit log: %s", a)
	}
	if !strings.Contains(a, "skipping record sub-2") || !strings.Contains(a, `"event":"record_created"`) {
		t.Errorf("audit log missing entries: %s", a)
	}
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var console bytes.Buffer
	l, err := New("loud", "", "", WithConsole(&console), WithJSON())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Debug("nope")
	l.Info("yes")
	if strings.Contains(console.String(), "nope") || !strings.Contains(console.String(), "yes") {
		t.Errorf("unexpected output: %s", console.String())
	}
	Nop().Error("discarded")
}
