package logutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLevel(t *testing.T) {
	cases := map[uint]slog.Level{
		0: slog.LevelInfo,
		1: slog.LevelDebug,
		2: LevelTrace,
		5: LevelTrace,
	}

	for verbosity, want := range cases {
		if got := Level(verbosity); got != want {
			t.Errorf("Level(%d) = %v, want %v", verbosity, got, want)
		}
	}
}

func TestTraceLevelName(t *testing.T) {
	var b bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(NewLogger(&b, LevelTrace))
	t.Cleanup(func() { slog.SetDefault(prev) })

	Trace("translated", "key", "lora_unet_x")

	out := b.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Fatalf("expected TRACE level in %q", out)
	}
	if !strings.Contains(out, "source=logutil_test.go:") {
		t.Fatalf("expected base-named source in %q", out)
	}
}

func TestTraceDisabled(t *testing.T) {
	var b bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(NewLogger(&b, slog.LevelInfo))
	t.Cleanup(func() { slog.SetDefault(prev) })

	Trace("hidden")
	if b.Len() != 0 {
		t.Fatalf("expected no output, got %q", b.String())
	}
}
