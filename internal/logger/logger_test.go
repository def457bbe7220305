package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		level     Level
		wantDebug bool
		wantInfo  bool
	}{
		{LevelOff, false, false},
		{LevelNormal, false, true},
		{LevelVerbose, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			log := New(tt.level, &buf)
			log.Debug("debug line")
			log.Info("info line")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Fatalf("debug visible=%v, want %v (out=%q)", got, tt.wantDebug, out)
			}
			if got := strings.Contains(out, "info line"); got != tt.wantInfo {
				t.Fatalf("info visible=%v, want %v (out=%q)", got, tt.wantInfo, out)
			}
		})
	}
}

func TestNamedSharesLevelAndPrefixes(t *testing.T) {
	var buf bytes.Buffer
	root := New(LevelNormal, &buf)
	child := root.Named("session").Named("merge")

	child.Warn("clip %d skipped", 3)
	if !strings.Contains(buf.String(), "[WRN] ") || !strings.Contains(buf.String(), "session.merge: clip 3 skipped") {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	root.SetLevel(LevelOff)
	child.Error("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected child to follow parent level, got %q", buf.String())
	}
	if child.GetLevel() != LevelOff {
		t.Fatalf("expected child level off, got %s", child.GetLevel())
	}
}
