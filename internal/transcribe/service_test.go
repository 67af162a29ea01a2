package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Vovarama1992/echolite/internal/ports"
	"github.com/Vovarama1992/echolite/internal/process"
	"github.com/Vovarama1992/echolite/internal/settings"
	"github.com/Vovarama1992/echolite/internal/workspace"
)

// fakeWhisper пишет аргументы в <-of>.txt, чтобы тест видел командную строку.
const fakeWhisper = `#!/bin/sh
prev=""
for a in "$@"; do
  if [ "$prev" = "-of" ]; then of="$a"; fi
  prev="$a"
done
printf '  hello from whisper\n  args: %s\n\n' "$*" > "$of.txt"
`

// recordingRunner запоминает вызовы и ничего не запускает.
type recordingRunner struct {
	calls int
	env   map[string]string
}

func (r *recordingRunner) Run(_ context.Context, _ string, _ []string, env map[string]string) error {
	r.calls++
	r.env = env
	return nil
}

func profile(t *testing.T, script string) settings.TranscribeProfile {
	t.Helper()
	p := settings.Defaults().Transcribe
	p.Executable = script
	p.ModelPath = "/models/ggml-tiny.bin"
	p.Language = "ru"
	p.Threads = 2
	return p
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whisper-cli")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribe(t *testing.T) {
	root := workspace.NewRoot(t.TempDir(), nil)
	ws, err := root.Acquire("transcribe")
	if err != nil {
		t.Fatal(err)
	}
	defer root.Release(ws)

	svc := NewService(process.NewExecRunner(nil), nil)
	text, err := svc.Transcribe(context.Background(), ws, ws.WavPath, profile(t, writeScript(t, fakeWhisper)))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if !strings.HasPrefix(text, "hello from whisper") || strings.HasSuffix(text, "\n") {
		t.Errorf("text = %q, want trimmed transcript", text)
	}
	for _, want := range []string{"-m /models/ggml-tiny.bin", "-f " + ws.WavPath, "-otxt", "-l ru", "-t 2", "-np"} {
		if !strings.Contains(text, want) {
			t.Errorf("args %q missing %q", text, want)
		}
	}
}

func TestTranscribeMissingOutput(t *testing.T) {
	root := workspace.NewRoot(t.TempDir(), nil)
	ws, _ := root.Acquire("transcribe")
	defer root.Release(ws)

	svc := NewService(process.NewExecRunner(nil), nil)
	_, err := svc.Transcribe(context.Background(), ws, ws.WavPath, profile(t, writeScript(t, "#!/bin/sh\nexit 0\n")))
	be, ok := ports.AsBackendError(err)
	if !ok || be.Kind != ports.KindProcessExit {
		t.Fatalf("Transcribe() error = %v, want process-exit-nonzero", err)
	}
}

func TestTranscribeEngineFailure(t *testing.T) {
	root := workspace.NewRoot(t.TempDir(), nil)
	ws, _ := root.Acquire("transcribe")
	defer root.Release(ws)

	svc := NewService(process.NewExecRunner(nil), nil)
	_, err := svc.Transcribe(context.Background(), ws, ws.WavPath,
		profile(t, writeScript(t, "#!/bin/sh\necho 'failed to load model' >&2\nexit 2\n")))
	be, ok := ports.AsBackendError(err)
	if !ok || be.Kind != ports.KindProcessExit {
		t.Fatalf("Transcribe() error = %v, want process-exit-nonzero", err)
	}
	if !strings.Contains(be.Detail, "failed to load model") {
		t.Errorf("Detail = %q, want stderr", be.Detail)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*settings.TranscribeProfile)
		want   ports.Kind
	}{
		{"local ok", func(*settings.TranscribeProfile) {}, ""},
		{"remote api", func(p *settings.TranscribeProfile) { p.Engine = settings.EngineRemoteAPI }, ports.KindNotImplemented},
		{"unknown engine", func(p *settings.TranscribeProfile) { p.Engine = "vosk" }, ports.KindNotImplemented},
		{"no model path", func(p *settings.TranscribeProfile) { p.ModelPath = "  " }, ports.KindMissingConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{}
			svc := NewService(runner, nil)
			p := settings.Defaults().Transcribe
			tt.mutate(&p)

			err := svc.Check(p)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Check() error = %v", err)
				}
				return
			}
			be, ok := ports.AsBackendError(err)
			if !ok || be.Kind != tt.want {
				t.Fatalf("Check() error = %v, want %s", err, tt.want)
			}

			root := workspace.NewRoot(t.TempDir(), nil)
			ws, _ := root.Acquire("transcribe")
			if _, err := svc.Transcribe(context.Background(), ws, ws.WavPath, p); err == nil {
				t.Error("Transcribe() should refuse the profile")
			}
			if runner.calls != 0 {
				t.Errorf("runner called %d times, want 0", runner.calls)
			}
		})
	}
}

func TestTranscribeThreadEnv(t *testing.T) {
	runner := &recordingRunner{}
	svc := NewService(runner, nil)
	root := workspace.NewRoot(t.TempDir(), nil)
	ws, err := root.Acquire("transcribe")
	if err != nil {
		t.Fatal(err)
	}
	defer root.Release(ws)

	// runner ничего не пишет, поэтому ждём ошибку об отсутствии транскрипта
	_, _ = svc.Transcribe(context.Background(), ws, ws.WavPath, profile(t, "whisper-cli"))
	if runner.calls != 1 {
		t.Fatalf("runner called %d times, want 1", runner.calls)
	}
	if got := runner.env["OMP_NUM_THREADS"]; got != "2" {
		t.Errorf("OMP_NUM_THREADS = %q, want 2", got)
	}
}

func TestExecRunnerPassesEnv(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
prev=""
for a in "$@"; do
  if [ "$prev" = "-of" ]; then of="$a"; fi
  prev="$a"
done
printf 'threads=%s' "$OMP_NUM_THREADS" > "$of.txt"
`)
	svc := NewService(process.NewExecRunner(nil), nil)
	root := workspace.NewRoot(t.TempDir(), nil)
	ws, err := root.Acquire("transcribe")
	if err != nil {
		t.Fatal(err)
	}
	defer root.Release(ws)

	text, err := svc.Transcribe(context.Background(), ws, ws.WavPath, profile(t, script))
	if err != nil {
		t.Fatal(err)
	}
	if text != "threads=2" {
		t.Errorf("transcript = %q, want threads=2", text)
	}
}
