// Package process запускает внешние программы (ffmpeg, whisper-cli) и
// сводит их завершение к ports.BackendError.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Vovarama1992/echolite/internal/ports"
)

const (
	defaultGrace   = 3 * time.Second
	stderrTailSize = 64 << 10
)

// Runner — то, чем пользуются нормализатор и транскрайбер.
type Runner interface {
	Run(ctx context.Context, name string, args []string, env map[string]string) error
}

type ExecRunner struct {
	log   *zap.Logger
	grace time.Duration
}

func NewExecRunner(log *zap.Logger) *ExecRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecRunner{log: log, grace: defaultGrace}
}

// WithGrace задаёт паузу между SIGTERM и SIGKILL при отмене.
func (r *ExecRunner) WithGrace(d time.Duration) *ExecRunner {
	r.grace = d
	return r
}

// Run ждёт завершения программы. Никаких повторов: ошибка уходит наверх
// сразу. Стандартный вывод выбрасывается, stderr копится для диагностики.
func (r *ExecRunner) Run(ctx context.Context, name string, args []string, env map[string]string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.grace

	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stderr := &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = stderr

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.log.Info("process cancelled",
			zap.String("cmd", name), zap.Duration("elapsed", elapsed))
		return fmt.Errorf("%s: %w", name, ctxErr)
	}

	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = fmt.Sprintf("%s exited with code %d: %s", name, exitErr.ExitCode(), detail)
		} else {
			detail = fmt.Sprintf("%s: %s", name, detail)
		}
		r.log.Warn("process failed",
			zap.String("cmd", name), zap.Strings("args", args),
			zap.Duration("elapsed", elapsed), zap.Error(err))
		return ports.ProcessExit(detail, err)
	}

	r.log.Debug("process finished", zap.String("cmd", name), zap.Duration("elapsed", elapsed))
	return nil
}

// tailBuffer хранит последние limit байт записанного.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
