package settings

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrNotFound — в хранилище ещё нет документа настроек.
var ErrNotFound = errors.New("settings document not found")

// Store — хранилище одного JSON-документа с профилями.
type Store interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, doc []byte) error
	Location() string
}

const (
	BackendOpenAI = "openai" // SSE chat/completions
	BackendOllama = "ollama" // NDJSON /api/chat

	EngineLocalCLI  = "local-cli"
	EngineRemoteAPI = "remote-api"
)

// Temperature принимает из JSON любое скалярное значение. Всё, что не
// читается как число ("abc", true, "NaN"), становится NaN и в Save
// заменяется сохранённым значением.
type Temperature float64

func (t *Temperature) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Trim(s, `"`), 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			*t = Temperature(v)
			return nil
		}
		*t = Temperature(math.NaN())
		return nil
	}
	*t = Temperature(v)
	return nil
}

func (t Temperature) Finite() bool {
	f := float64(t)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ChatProfile — профиль для вопросов к аудио и к транскрипту.
type ChatProfile struct {
	Backend      string      `json:"backend"`
	Model        string      `json:"model"`
	BaseURL      string      `json:"baseURL"`
	APIKeyEnv    string      `json:"apiKeyEnv"`
	Temperature  Temperature `json:"temperature"`
	SystemPrompt string      `json:"systemPrompt"`
}

// TranscribeProfile — профиль распознавания речи.
type TranscribeProfile struct {
	Engine         string `json:"engine"`
	Model          string `json:"model"`
	BaseURL        string `json:"baseURL"`
	APIKeyEnv      string `json:"apiKeyEnv"`
	ResponseFormat string `json:"responseFormat"`
	SystemPrompt   string `json:"systemPrompt"`
	Executable     string `json:"executable"`
	ModelPath      string `json:"modelPath"`
	Language       string `json:"language"`
	Threads        int    `json:"threads"`
}

// Profiles — весь документ настроек.
type Profiles struct {
	AskAudio   ChatProfile       `json:"askAudio"`
	Transcribe TranscribeProfile `json:"transcribe"`
	AskText    ChatProfile       `json:"askText"`
}
