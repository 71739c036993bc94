package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLoggerLevels(t *testing.T) {
	log, buf := newBufferLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "debug msg", "attempt", 1)
	log.Info(ctx, "info msg", "revision", 2)
	log.Warn(ctx, "warn msg", "retries", 3)
	log.Error(ctx, "error msg", "code", 4)

	out := buf.String()

	for _, want := range []string{
		"level=DEBUG", `msg="debug msg"`, "attempt=1",
		"level=INFO", `msg="info msg"`, "revision=2",
		"level=WARN", `msg="warn msg"`, "retries=3",
		"level=ERROR", `msg="error msg"`, "code=4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestSlogLoggerWith(t *testing.T) {
	log, buf := newBufferLogger(t)

	child := log.With("account_id", "a1", "device_id", "d1")
	child.Info(context.Background(), "login", "username", "alice")

	out := buf.String()
	for _, want := range []string{"msg=login", "account_id=a1", "device_id=d1", "username=alice"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
