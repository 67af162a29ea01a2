// Package stream сводит потоковые ответы чат-бэкендов (SSE и NDJSON)
// к одной последовательности текстовых фрагментов.
package stream

import "github.com/Vovarama1992/echolite/internal/settings"

// Fragment — кусок сгенерированного текста. Done бывает ровно у одного,
// последнего фрагмента; его Text тоже нужно отдать клиенту.
type Fragment struct {
	Text string
	Done bool
}

// Stream читается до Done, после чего Next возвращает io.EOF.
// Close освобождает соединение и может вызываться в любой момент.
type Stream interface {
	Next() (Fragment, error)
	Close() error
}

// Protocol — формат потока бэкенда.
type Protocol string

const (
	ProtocolSSE    Protocol = "sse"
	ProtocolNDJSON Protocol = "ndjson"
)

// ProtocolFor выбирает формат по полю backend профиля.
func ProtocolFor(backend string) (Protocol, bool) {
	switch backend {
	case settings.BackendOpenAI:
		return ProtocolSSE, true
	case settings.BackendOllama:
		return ProtocolNDJSON, true
	default:
		return "", false
	}
}

// ChatRequest — что отправить бэкенду. Модель и температура берутся из профиля.
type ChatRequest struct {
	System   string // пусто — системного сообщения нет
	Prompt   string
	AudioWAV []byte // 16 kHz mono WAV, уходит как input_audio
}
