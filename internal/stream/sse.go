package stream

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"

	"github.com/Vovarama1992/echolite/internal/ports"
)

var (
	ssePrefix     = []byte("data:")
	sseTerminator = []byte("[DONE]")
)

// sseEvent — chunk chat.completion.chunk плюс поле error, которое
// llama.cpp и прокси шлют прямо в потоке.
type sseEvent struct {
	Choices []openai.ChatCompletionStreamChoice `json:"choices"`
	Error   json.RawMessage                     `json:"error,omitempty"`
}

type sseDecoder struct{}

func (sseDecoder) name() string         { return "sse" }
func (sseDecoder) decodeTrailing() bool { return false }

func (sseDecoder) decode(line []byte) (string, bool, error) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, ssePrefix) {
		// пустые строки, комментарии ":", event:, id:
		return "", false, nil
	}
	payload := bytes.TrimSpace(line[len(ssePrefix):])
	if bytes.Equal(payload, sseTerminator) {
		return "", true, nil
	}

	var ev sseEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		// JSON мог разорваться на границе чтения
		return "", false, nil
	}
	if len(ev.Error) > 0 && !bytes.Equal(ev.Error, []byte("null")) {
		return "", false, ports.BackendRejected(0, errorText(ev.Error))
	}
	if len(ev.Choices) == 0 {
		return "", false, nil
	}
	return ev.Choices[0].Delta.Content, false, nil
}
