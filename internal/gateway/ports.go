package gateway

import (
	"context"
	"io"

	"github.com/Vovarama1992/echolite/internal/audio"
	"github.com/Vovarama1992/echolite/internal/settings"
	"github.com/Vovarama1992/echolite/internal/stream"
	"github.com/Vovarama1992/echolite/internal/workspace"
)

type SettingsSource interface {
	Load(ctx context.Context) (settings.Profiles, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, ws *workspace.Workspace, upload io.Reader) (audio.Info, error)
}

type Transcriber interface {
	Check(p settings.TranscribeProfile) error
	Transcribe(ctx context.Context, ws *workspace.Workspace, wavPath string, p settings.TranscribeProfile) (string, error)
}

type ChatOpener interface {
	Open(ctx context.Context, p settings.ChatProfile, req stream.ChatRequest) (stream.Stream, error)
}

// Sink получает фрагменты ответа по порядку.
type Sink interface {
	WriteFragment(text string) error
}

// AudioQuestion — загрузка плюс инструкция. Audio == nil — файла нет.
type AudioQuestion struct {
	Audio       io.Reader
	Filename    string
	Size        int64
	Instruction string
}

type TranscriptQuestion struct {
	Transcript  string `json:"transcript"`
	Instruction string `json:"instruction"`
}
