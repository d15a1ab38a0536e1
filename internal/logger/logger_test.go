package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestDebugModeGatesDebugLines(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	SetDebugMode(false)
	LogDebug("hidden", "k", 1)
	if buf.Len() != 0 {
		t.Fatalf("debug line written with debug mode off: %q", buf.String())
	}

	SetDebugMode(true)
	defer SetDebugMode(false)
	if !IsDebugMode() {
		t.Fatal("IsDebugMode = false after SetDebugMode(true)")
	}
	LogDebug("visible", "frame", 42)
	if !strings.Contains(buf.String(), "visible") || !strings.Contains(buf.String(), "frame=42") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestWarnAlwaysWritten(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	LogWarn("seek rejected", "frame", -5)
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("missing warn level in %q", buf.String())
	}
}
