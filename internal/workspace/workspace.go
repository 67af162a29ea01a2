// Package workspace выдаёт каждому запросу свой набор временных путей
// и гарантирует их удаление.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Root — общий для процесса каталог временных файлов.
type Root struct {
	dir  string
	log  *zap.Logger
	once sync.Once
	err  error
}

func NewRoot(dir string, log *zap.Logger) *Root {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "echolite")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Root{dir: dir, log: log}
}

func (r *Root) Dir() string { return r.dir }

func (r *Root) ensure() error {
	r.once.Do(func() {
		r.err = os.MkdirAll(r.dir, 0o755)
	})
	return r.err
}

// Workspace — пути одного запроса. Все имена начинаются с ID.
type Workspace struct {
	ID             string
	Kind           string
	RawPath        string // загруженный файл как есть
	WavPath        string // 16 kHz mono WAV после ffmpeg
	TranscriptBase string // база для вывода движка распознавания (<base>.txt)

	planned []string
	release sync.Once
	removed []string
}

// TranscriptPath — файл, который пишет whisper-cli с -otxt.
func (w *Workspace) TranscriptPath() string {
	return w.TranscriptBase + ".txt"
}

// Planned — все пути, которые будут удалены при Release.
func (w *Workspace) Planned() []string {
	out := make([]string, len(w.planned))
	copy(out, w.planned)
	return out
}

// Acquire ничего не создаёт на диске, только считает пути. ID = время +
// UUIDv4, так что общий счётчик и блокировки не нужны.
func (r *Root) Acquire(kind string) (*Workspace, error) {
	if err := r.ensure(); err != nil {
		return nil, fmt.Errorf("temp root %s: %w", r.dir, err)
	}

	id := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString())
	base := filepath.Join(r.dir, id)

	ws := &Workspace{
		ID:             id,
		Kind:           kind,
		RawPath:        base + "-in",
		WavPath:        base + ".wav",
		TranscriptBase: base + "-out",
	}
	ws.planned = []string{ws.RawPath, ws.WavPath, ws.TranscriptPath()}
	return ws, nil
}

// Release удаляет все запланированные пути ровно один раз. Ошибки удаления
// только логируются. Возвращает реально удалённые пути.
func (r *Root) Release(ws *Workspace) []string {
	if ws == nil {
		return nil
	}
	ws.release.Do(func() {
		for _, p := range ws.planned {
			err := os.Remove(p)
			switch {
			case err == nil:
				ws.removed = append(ws.removed, p)
			case errors.Is(err, fs.ErrNotExist):
			default:
				r.log.Warn("workspace: cleanup failed",
					zap.String("workspace", ws.ID), zap.String("path", p), zap.Error(err))
			}
		}
		r.log.Debug("workspace released",
			zap.String("workspace", ws.ID), zap.String("kind", ws.Kind), zap.Int("removed", len(ws.removed)))
	})
	return ws.removed
}
