package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"ERROR":   LevelError,
		"none":    LevelNone,
		"bogus":   LevelInfo,
	}

	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestLoggerWritesLeveledLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devroom.log")

	l, err := New(LevelInfo, path, "channel")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.Debug("should be filtered")
	l.Info("connected to project %s", "p1")
	l.Error("mount failed: %v", os.ErrPermission)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	out := string(data)
	if strings.Contains(out, "should be filtered") {
		t.Error("debug line written despite info level")
	}
	if !strings.Contains(out, "[INFO] [channel] connected to project p1") {
		t.Errorf("missing info line, got:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR]") {
		t.Errorf("missing error line, got:\n%s", out)
	}
}

func TestWithPrefixChaining(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devroom.log")

	l, err := New(LevelDebug, path, "workspace")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	child := l.WithPrefix("files")
	child.Info("merged")

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "[workspace:files]") {
		t.Errorf("expected chained prefix, got:\n%s", string(data))
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	l, err := New(LevelNone, "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Must not panic or create files
	l.Info("into the void")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
