package stream

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Vovarama1992/echolite/internal/ports"
	"github.com/Vovarama1992/echolite/internal/settings"
)

const maxErrorBody = 64 << 10

// Client открывает потоковый чат у бэкенда, описанного профилем.
type Client struct {
	http   *http.Client
	log    *zap.Logger
	getenv func(string) string
}

// NewClient без таймаута на весь запрос: ответ стримится сколько угодно
// долго, ограничивает его только контекст запроса.
func NewClient(httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 5 * time.Minute,
				IdleConnTimeout:       90 * time.Second,
			},
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{http: httpClient, log: log, getenv: os.Getenv}
}

// WithEnv подменяет источник переменных окружения (ключи API).
func (c *Client) WithEnv(getenv func(string) string) *Client {
	c.getenv = getenv
	return c
}

func (c *Client) Open(ctx context.Context, p settings.ChatProfile, req ChatRequest) (Stream, error) {
	proto, ok := ProtocolFor(p.Backend)
	if !ok {
		return nil, ports.NotImplemented(fmt.Sprintf("unknown chat backend %q", p.Backend))
	}

	var (
		url  string
		body any
		dec  lineDecoder
	)
	switch proto {
	case ProtocolSSE:
		url = sseEndpoint(p.BaseURL)
		body = buildSSEBody(p, req)
		dec = sseDecoder{}
	case ProtocolNDJSON:
		if len(req.AudioWAV) > 0 {
			return nil, ports.NotImplemented("audio input requires an openai-compatible backend")
		}
		url = strings.TrimRight(p.BaseURL, "/") + "/api/chat"
		body = buildOllamaBody(p, req)
		dec = ndjsonDecoder{}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, ports.NetworkUnreachable(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if proto == ProtocolSSE {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/x-ndjson")
	}
	if p.APIKeyEnv != "" {
		if key := c.getenv(p.APIKeyEnv); key != "" {
			httpReq.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ports.NetworkUnreachable(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.Body == nil || resp.Body == http.NoBody {
		var raw []byte
		if resp.Body != nil {
			raw, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
		}
		msg := rejectionMessage(raw)
		if msg == "" {
			msg = resp.Status
		}
		c.log.Warn("chat backend rejected request",
			zap.String("url", url), zap.Int("status", resp.StatusCode), zap.String("detail", msg))
		return nil, ports.BackendRejected(resp.StatusCode, msg)
	}

	c.log.Debug("chat stream opened",
		zap.String("url", url), zap.String("model", p.Model), zap.String("protocol", string(proto)))
	return newLineStream(ctx, resp.Body, dec), nil
}

func sseEndpoint(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// ---- тела запросов ----

type inputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type contentPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	InputAudio *inputAudio `json:"input_audio,omitempty"`
}

// audioMessage — go-openai не умеет input_audio, поэтому своя структура.
type audioMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type sseRequest struct {
	Model       string  `json:"model"`
	Messages    []any   `json:"messages"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

func buildSSEBody(p settings.ChatProfile, req ChatRequest) sseRequest {
	var msgs []any
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	if len(req.AudioWAV) > 0 {
		msgs = append(msgs, audioMessage{
			Role: openai.ChatMessageRoleUser,
			Content: []contentPart{
				{Type: "input_audio", InputAudio: &inputAudio{
					Data:   base64.StdEncoding.EncodeToString(req.AudioWAV),
					Format: "wav",
				}},
				{Type: string(openai.ChatMessagePartTypeText), Text: req.Prompt},
			},
		})
	} else {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	}

	return sseRequest{
		Model:       p.Model,
		Messages:    msgs,
		Temperature: temperatureOf(p),
		Stream:      true,
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
	Messages []ollamaMessage `json:"messages"`
}

func buildOllamaBody(p settings.ChatProfile, req ChatRequest) ollamaRequest {
	var msgs []ollamaMessage
	if req.System != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, ollamaMessage{Role: "user", Content: req.Prompt})

	return ollamaRequest{
		Model:    p.Model,
		Stream:   true,
		Options:  map[string]any{"temperature": temperatureOf(p)},
		Messages: msgs,
	}
}

func temperatureOf(p settings.ChatProfile) float64 {
	if !p.Temperature.Finite() {
		return 0.2
	}
	return float64(p.Temperature)
}

// IsCancel — ошибка вызвана отменой запроса, а не бэкендом.
func IsCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
