// Package gateway связывает нормализацию, распознавание и чат-бэкенды
// в сценарии HTTP-эндпоинтов.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vovarama1992/echolite/internal/ports"
	"github.com/Vovarama1992/echolite/internal/settings"
	"github.com/Vovarama1992/echolite/internal/stream"
	"github.com/Vovarama1992/echolite/internal/workspace"
)

const (
	msgMissingAudio      = "Missing audio or instruction"
	msgMissingAudioOnly  = "Missing audio"
	msgMissingTranscript = "Missing transcript or instruction"
)

type Service struct {
	settings    SettingsSource
	workspaces  *workspace.Root
	normalizer  Normalizer
	transcriber Transcriber
	chat        ChatOpener
	log         *zap.Logger
}

func NewService(
	settings SettingsSource,
	workspaces *workspace.Root,
	normalizer Normalizer,
	transcriber Transcriber,
	chat ChatOpener,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		settings:    settings,
		workspaces:  workspaces,
		normalizer:  normalizer,
		transcriber: transcriber,
		chat:        chat,
		log:         log,
	}
}

// AskAudio — вопрос по аудио к мультимодальной модели. Системный промпт
// профиля идёт первым, инструкция пользователя после него.
func (s *Service) AskAudio(ctx context.Context, q AudioQuestion, sink Sink) error {
	if q.Audio == nil || strings.TrimSpace(q.Instruction) == "" {
		return ports.NewClientError(msgMissingAudio)
	}

	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return err
	}
	profile := cfg.AskAudio
	if profile.Backend != settings.BackendOpenAI {
		return ports.NotImplemented(fmt.Sprintf("audio questions need an openai-compatible backend, got %q", profile.Backend))
	}

	ws, err := s.workspaces.Acquire("ask-audio")
	if err != nil {
		return err
	}
	defer s.workspaces.Release(ws)

	if _, err := s.normalizer.Normalize(ctx, ws, q.Audio); err != nil {
		return err
	}
	wav, err := os.ReadFile(ws.WavPath)
	if err != nil {
		return fmt.Errorf("read normalized audio: %w", err)
	}

	st, err := s.chat.Open(ctx, profile, stream.ChatRequest{
		Prompt:   composeAudioPrompt(profile.SystemPrompt, q.Instruction),
		AudioWAV: wav,
	})
	if err != nil {
		return err
	}
	return s.forward(ctx, "ask-audio", ws.ID, st, sink)
}

// Transcribe отдаёт расшифровку одним фрагментом.
func (s *Service) Transcribe(ctx context.Context, q AudioQuestion, sink Sink) error {
	if q.Audio == nil {
		return ports.NewClientError(msgMissingAudioOnly)
	}

	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return err
	}
	// до рабочей области: неподдерживаемый движок не должен трогать диск
	if err := s.transcriber.Check(cfg.Transcribe); err != nil {
		return err
	}

	ws, err := s.workspaces.Acquire("transcribe")
	if err != nil {
		return err
	}
	defer s.workspaces.Release(ws)

	text, err := s.transcribeAudio(ctx, ws, q.Audio, cfg.Transcribe)
	if err != nil {
		return err
	}
	return sink.WriteFragment(text)
}

// Complete — вопрос по готовой расшифровке к текстовой модели.
func (s *Service) Complete(ctx context.Context, q TranscriptQuestion, sink Sink) error {
	if strings.TrimSpace(q.Transcript) == "" || strings.TrimSpace(q.Instruction) == "" {
		return ports.NewClientError(msgMissingTranscript)
	}

	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return err
	}
	return s.complete(ctx, cfg.AskText, q, "", sink)
}

// AskTranscribed — распознать локально, затем спросить текстовую модель.
func (s *Service) AskTranscribed(ctx context.Context, q AudioQuestion, sink Sink) error {
	if q.Audio == nil || strings.TrimSpace(q.Instruction) == "" {
		return ports.NewClientError(msgMissingAudio)
	}

	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return err
	}
	if err := s.transcriber.Check(cfg.Transcribe); err != nil {
		return err
	}

	ws, err := s.workspaces.Acquire("ask-transcribed")
	if err != nil {
		return err
	}
	defer s.workspaces.Release(ws)

	text, err := s.transcribeAudio(ctx, ws, q.Audio, cfg.Transcribe)
	if err != nil {
		return err
	}
	return s.complete(ctx, cfg.AskText, TranscriptQuestion{Transcript: text, Instruction: q.Instruction}, ws.ID, sink)
}

func (s *Service) transcribeAudio(ctx context.Context, ws *workspace.Workspace, upload io.Reader, p settings.TranscribeProfile) (string, error) {
	if _, err := s.normalizer.Normalize(ctx, ws, upload); err != nil {
		return "", err
	}
	text, err := s.transcriber.Transcribe(ctx, ws, ws.WavPath, p)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ports.ProcessExit("transcription produced no text", nil)
	}
	return text, nil
}

func (s *Service) complete(ctx context.Context, p settings.ChatProfile, q TranscriptQuestion, wsID string, sink Sink) error {
	st, err := s.chat.Open(ctx, p, stream.ChatRequest{
		System: p.SystemPrompt,
		Prompt: composeTranscriptPrompt(q.Instruction, q.Transcript),
	})
	if err != nil {
		return err
	}
	return s.forward(ctx, "complete", wsID, st, sink)
}

// forward пересылает фрагменты по мере поступления. Ответ без единого
// непустого фрагмента — ошибка бэкенда.
func (s *Service) forward(ctx context.Context, op, wsID string, st stream.Stream, sink Sink) error {
	defer st.Close()

	var (
		started   = time.Now()
		fragments int
		chars     int
		firstAt   time.Duration
	)
	for {
		f, err := st.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !stream.IsCancel(err) {
				return ctxErr
			}
			return err
		}
		if f.Text != "" {
			if fragments == 0 {
				firstAt = time.Since(started)
			}
			fragments++
			chars += len(f.Text)
			if err := sink.WriteFragment(f.Text); err != nil {
				return err
			}
		}
		if f.Done {
			break
		}
	}

	if fragments == 0 {
		return ports.MalformedPayload("backend stream finished without any text")
	}

	s.log.Info("answer streamed",
		zap.String("op", op),
		zap.String("workspace", wsID),
		zap.Int("fragments", fragments),
		zap.Int("bytes", chars),
		zap.Duration("first_fragment", firstAt),
		zap.Duration("total", time.Since(started)))
	return nil
}

func composeAudioPrompt(system, instruction string) string {
	system = strings.TrimSpace(system)
	instruction = strings.TrimSpace(instruction)
	if system == "" {
		return instruction
	}
	return system + "\n\n" + instruction
}

func composeTranscriptPrompt(instruction, transcript string) string {
	return "Follow the INSTRUCTION using ONLY the TRANSCRIPT. " +
		"Be concise and cite exact quotes when helpful.\n\n" +
		"INSTRUCTION:\n" + instruction + "\n\nTRANSCRIPT:\n" + transcript
}
