package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mlplayground/config"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, level, err := New(config.Log{Level: "info", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("trained", zap.String("model", "dense"))
	if err := SetLevel(level, "debug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Debug("visible")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"trained"`) || !strings.Contains(out, `"model":"dense"`) {
		t.Fatalf("missing info entry: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatal("debug entry written at info level")
	}
	if !strings.Contains(out, "visible") {
		t.Fatal("level change not applied")
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, _, err := New(config.Log{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestSetLevel(t *testing.T) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if err := SetLevel(level, "warn"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level.Level() != zapcore.WarnLevel {
		t.Fatalf("expected warn, got %v", level.Level())
	}
	if err := SetLevel(level, "nope"); err == nil {
		t.Fatal("expected error")
	}
}
