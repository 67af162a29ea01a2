package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const (
	minTemperature     = 0
	maxTemperature     = 2
	defaultTemperature = 0.2
)

// Defaults — жёсткие значения, которыми добиваются все отсутствующие поля.
func Defaults() Profiles {
	return Profiles{
		AskAudio: ChatProfile{
			Backend:      BackendOpenAI,
			Model:        "qwen2.5-omni-3b",
			BaseURL:      "http://localhost:8080",
			APIKeyEnv:    "LLM_API_KEY",
			Temperature:  defaultTemperature,
			SystemPrompt: "You are an assistant that answers questions directly from audio content.",
		},
		Transcribe: TranscribeProfile{
			Engine:         EngineLocalCLI,
			Model:          "whisper-large-v3",
			BaseURL:        "http://localhost:9090/v1",
			APIKeyEnv:      "ASR_API_KEY",
			ResponseFormat: "text",
			SystemPrompt:   "Transcribe clearly with speaker cues when possible.",
			Executable:     "whisper-cli",
			ModelPath:      "models/ggml-large-v3.bin",
			Language:       "auto",
		},
		AskText: ChatProfile{
			Backend:      BackendOllama,
			Model:        "qwen3:8b",
			BaseURL:      "http://localhost:11434",
			Temperature:  defaultTemperature,
			SystemPrompt: "You analyze meeting transcripts precisely and answer user instructions.",
		},
	}
}

// Merge накладывает patch на base по полям: отсутствующие поля остаются
// из base, лишние игнорируются, вложенные профили не заменяются целиком.
func Merge(base Profiles, patch []byte) (Profiles, error) {
	out := base
	if len(bytes.TrimSpace(patch)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(patch, &out); err != nil {
		// поле не того типа пропускается, остальные уже разобраны
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return out, nil
		}
		return base, fmt.Errorf("merge settings: %w", err)
	}
	return out, nil
}

// Provider — загрузка/сохранение профилей поверх Store. Обычное чтение
// идёт без блокировки, mu берётся только на запись.
type Provider struct {
	store Store
	log   *zap.Logger
	mu    sync.Mutex
}

func NewProvider(store Store, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{store: store, log: log}
}

func (p *Provider) Location() string {
	return p.store.Location()
}

// Load читает документ и сливает его с дефолтами. Отсутствующий или
// битый документ перезаписывается дефолтами.
func (p *Provider) Load(ctx context.Context) (Profiles, error) {
	cfg, ok, err := p.read(ctx)
	if err != nil || ok {
		return cfg, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(ctx)
}

// load вызывается под mu: перечитывает документ, пока его не переписал
// параллельный запрос, и при необходимости пишет дефолты.
func (p *Provider) load(ctx context.Context) (Profiles, error) {
	cfg, ok, err := p.read(ctx)
	if err != nil || ok {
		return cfg, err
	}
	return p.bootstrap(ctx)
}

// read: ok == false — документа нет или он битый.
func (p *Provider) read(ctx context.Context) (Profiles, bool, error) {
	raw, err := p.store.Read(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		p.log.Info("settings: bootstrap defaults", zap.String("location", p.store.Location()))
		return Profiles{}, false, nil
	case err != nil:
		return Profiles{}, false, fmt.Errorf("read settings: %w", err)
	}

	merged, err := Merge(Defaults(), raw)
	if err != nil {
		p.log.Warn("settings: corrupt document, rewriting defaults",
			zap.String("location", p.store.Location()), zap.Error(err))
		return Profiles{}, false, nil
	}

	// документ могли поправить руками
	d := Defaults()
	merged.AskAudio.Temperature = sanitizeTemperature(merged.AskAudio.Temperature, d.AskAudio.Temperature)
	merged.AskText.Temperature = sanitizeTemperature(merged.AskText.Temperature, d.AskText.Temperature)
	return merged, true, nil
}

func (p *Provider) bootstrap(ctx context.Context) (Profiles, error) {
	d := Defaults()
	if err := p.write(ctx, d); err != nil {
		return Profiles{}, err
	}
	return d, nil
}

// Save зажимает температуры в [0, 2], нечисловые заменяет сохранённым
// значением и записывает документ.
func (p *Provider) Save(ctx context.Context, candidate Profiles) (Profiles, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prior, err := p.load(ctx)
	if err != nil {
		return Profiles{}, err
	}

	candidate.AskAudio.Temperature = sanitizeTemperature(candidate.AskAudio.Temperature, prior.AskAudio.Temperature)
	candidate.AskText.Temperature = sanitizeTemperature(candidate.AskText.Temperature, prior.AskText.Temperature)
	if candidate.Transcribe.Threads < 0 {
		candidate.Transcribe.Threads = 0
	}

	if err := p.write(ctx, candidate); err != nil {
		return Profiles{}, err
	}
	return candidate, nil
}

func sanitizeTemperature(v, prior Temperature) Temperature {
	if !v.Finite() {
		v = prior
		if !v.Finite() {
			v = defaultTemperature
		}
	}
	if v < minTemperature {
		return minTemperature
	}
	if v > maxTemperature {
		return maxTemperature
	}
	return v
}

func (p *Provider) write(ctx context.Context, cfg Profiles) error {
	doc, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := p.store.Write(ctx, doc); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
