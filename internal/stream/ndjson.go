package stream

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/Vovarama1992/echolite/internal/ports"
)

// ollamaLine — строка /api/chat, response — для /api/generate.
type ollamaLine struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message,omitempty"`
	Response string          `json:"response,omitempty"`
	Done     bool            `json:"done"`
	Error    json.RawMessage `json:"error,omitempty"`
}

type ndjsonDecoder struct{}

func (ndjsonDecoder) name() string         { return "ndjson" }
func (ndjsonDecoder) decodeTrailing() bool { return true }

func (ndjsonDecoder) decode(line []byte) (string, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return "", false, nil
	}

	var obj ollamaLine
	if err := json.Unmarshal(line, &obj); err != nil {
		return "", false, nil
	}
	if len(obj.Error) > 0 && !bytes.Equal(obj.Error, []byte("null")) {
		return "", false, ports.BackendRejected(0, errorText(obj.Error))
	}

	text := obj.Response
	if obj.Message != nil && obj.Message.Content != "" {
		text = obj.Message.Content
	}
	return text, obj.Done, nil
}
