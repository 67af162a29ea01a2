package stream

import (
	"strings"

	"github.com/goccy/go-json"
)

const llamaAudioHint = " (llama.cpp expects base64 16 kHz mono WAV audio; ensure the server was built with audio support)"

// rejectionMessage достаёт читаемое сообщение из тела ошибки бэкенда:
// message, error.message или error строкой. Иначе — тело как есть.
func rejectionMessage(body []byte) string {
	msg := strings.TrimSpace(string(body))

	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			msg = payload.Message
		case len(payload.Error) > 0:
			if s := errorText(payload.Error); s != "" {
				msg = s
			}
		}
	}

	if strings.Contains(msg, "audio input is not supported") {
		msg += llamaAudioHint
	}
	return msg
}

// errorText — поле error бывает строкой или объектом {message}.
func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return strings.TrimSpace(string(raw))
}
