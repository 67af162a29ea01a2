// Package audio приводит загруженный файл к 16 kHz mono WAV через ffmpeg.
package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-audio/wav"
	"go.uber.org/zap"

	"github.com/Vovarama1992/echolite/internal/ports"
	"github.com/Vovarama1992/echolite/internal/process"
	"github.com/Vovarama1992/echolite/internal/workspace"
)

const (
	TargetSampleRate = 16000
	TargetChannels   = 1
)

// Info — то, что удалось прочитать из заголовка WAV.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
	Size       int64
}

type Normalizer struct {
	runner process.Runner
	ffmpeg string
	log    *zap.Logger
}

func NewNormalizer(runner process.Runner, ffmpegBin string, log *zap.Logger) *Normalizer {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{runner: runner, ffmpeg: ffmpegBin, log: log}
}

// Normalize пишет загрузку в ws.RawPath и конвертирует её в ws.WavPath.
// Формат входа не проверяем: что не осилил ffmpeg, то ошибка процесса.
func (n *Normalizer) Normalize(ctx context.Context, ws *workspace.Workspace, upload io.Reader) (Info, error) {
	f, err := os.OpenFile(ws.RawPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return Info{}, fmt.Errorf("create upload file: %w", err)
	}
	written, err := io.Copy(f, upload)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Info{}, fmt.Errorf("store upload: %w", err)
	}

	// ffmpeg -y -i input -ac 1 -ar 16000 -f wav output
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-y", "-i", ws.RawPath,
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		ws.WavPath,
	}
	if err := n.runner.Run(ctx, n.ffmpeg, args, nil); err != nil {
		return Info{}, err
	}

	info, err := Inspect(ws.WavPath)
	if err != nil {
		return Info{}, ports.ProcessExit("ffmpeg produced unreadable output: "+err.Error(), err)
	}
	if info.SampleRate != TargetSampleRate || info.Channels != TargetChannels {
		return Info{}, ports.ProcessExit(
			fmt.Sprintf("ffmpeg produced %d Hz / %d ch, want %d Hz mono", info.SampleRate, info.Channels, TargetSampleRate), nil)
	}

	n.log.Debug("audio normalized",
		zap.String("workspace", ws.ID),
		zap.String("upload", humanize.Bytes(uint64(written))),
		zap.String("wav", humanize.Bytes(uint64(info.Size))),
		zap.Duration("duration", info.Duration))
	return info, nil
}

// Inspect читает заголовок WAV-файла.
func Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return Info{}, err
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Info{}, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if err := dec.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("%s: %w", path, err)
	}

	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Size:       fi.Size(),
	}
	if bytesPerSec := int64(info.SampleRate) * int64(info.Channels) * int64(info.BitDepth/8); bytesPerSec > 0 {
		info.Duration = time.Duration(dec.PCMLen()) * time.Second / time.Duration(bytesPerSec)
	}
	return info, nil
}
