// Package transcribe превращает нормализованный WAV в текст.
package transcribe

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vovarama1992/echolite/internal/ports"
	"github.com/Vovarama1992/echolite/internal/process"
	"github.com/Vovarama1992/echolite/internal/settings"
	"github.com/Vovarama1992/echolite/internal/workspace"
)

type Service struct {
	runner process.Runner
	log    *zap.Logger
}

func NewService(runner process.Runner, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{runner: runner, log: log}
}

// Check отсекает неподдерживаемые профили до того, как запрос займёт
// рабочую область или запустит процесс.
func (s *Service) Check(p settings.TranscribeProfile) error {
	switch p.Engine {
	case settings.EngineLocalCLI:
	case settings.EngineRemoteAPI:
		return ports.NotImplemented("transcription engine remote-api is not implemented yet")
	default:
		return ports.NotImplemented(fmt.Sprintf("unknown transcription engine %q", p.Engine))
	}
	if strings.TrimSpace(p.ModelPath) == "" {
		return ports.MissingConfig("transcribe.modelPath")
	}
	return nil
}

// Transcribe запускает whisper-cli над wavPath и возвращает обрезанный
// текст из <TranscriptBase>.txt.
func (s *Service) Transcribe(ctx context.Context, ws *workspace.Workspace, wavPath string, p settings.TranscribeProfile) (string, error) {
	if err := s.Check(p); err != nil {
		return "", err
	}

	exe := p.Executable
	if exe == "" {
		exe = "whisper-cli"
	}
	lang := p.Language
	if lang == "" {
		lang = "auto"
	}
	threads := p.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	args := []string{
		"-m", p.ModelPath,
		"-f", wavPath,
		"-of", ws.TranscriptBase,
		"-otxt",
		"-l", lang,
		"-t", strconv.Itoa(threads),
		"-np",
	}

	started := time.Now()
	if err := s.runner.Run(ctx, exe, args, threadEnv(threads)); err != nil {
		return "", err
	}

	raw, err := os.ReadFile(ws.TranscriptPath())
	if err != nil {
		return "", ports.ProcessExit(exe+" finished without writing a transcript: "+err.Error(), err)
	}
	text := strings.TrimSpace(string(raw))

	s.log.Info("transcribed",
		zap.String("workspace", ws.ID),
		zap.String("model", p.Model),
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(started)))
	return text, nil
}

// threadEnv держит OpenMP-пул whisper в тех же рамках, что и -t.
func threadEnv(threads int) map[string]string {
	return map[string]string{"OMP_NUM_THREADS": strconv.Itoa(threads)}
}
