package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Vovarama1992/echolite/internal/ports"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunSuccess(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	script := writeScript(t, `printf '%s' "$GREETING" > "$1"`)

	r := NewExecRunner(nil)
	err := r.Run(context.Background(), script, []string{out}, map[string]string{"GREETING": "hello"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("output = %q, want hello", got)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "model not found" >&2; exit 3`)

	err := NewExecRunner(nil).Run(context.Background(), script, nil, nil)
	be, ok := ports.AsBackendError(err)
	if !ok {
		t.Fatalf("Run() error = %v, want BackendError", err)
	}
	if be.Kind != ports.KindProcessExit {
		t.Errorf("Kind = %s, want %s", be.Kind, ports.KindProcessExit)
	}
	if !strings.Contains(be.Detail, "model not found") || !strings.Contains(be.Detail, "code 3") {
		t.Errorf("Detail = %q, want stderr and exit code", be.Detail)
	}
}

func TestRunMissingExecutable(t *testing.T) {
	err := NewExecRunner(nil).Run(context.Background(), "/nonexistent/whisper-cli", nil, nil)
	be, ok := ports.AsBackendError(err)
	if !ok || be.Kind != ports.KindProcessExit {
		t.Fatalf("Run() error = %v, want process-exit-nonzero", err)
	}
}

func TestRunCancel(t *testing.T) {
	script := writeScript(t, `sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	started := time.Now()
	err := NewExecRunner(nil).WithGrace(time.Second).Run(ctx, script, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if _, ok := ports.AsBackendError(err); ok {
		t.Error("cancellation must not be reported as a backend error")
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Errorf("Run() took %v after cancel", elapsed)
	}
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 8}
	_, _ = b.Write([]byte("0123456789"))
	_, _ = b.Write([]byte("ab"))
	if got := b.String(); got != "456789ab" {
		t.Errorf("tail = %q, want 456789ab", got)
	}
}
