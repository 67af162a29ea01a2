package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Vovarama1992/echolite/internal/ports"
)

const (
	readChunk = 4 << 10
	// maxLine — предел одной строки потока без '\n'.
	maxLine = 1 << 20
)

// lineDecoder разбирает одну полную строку потока.
// text — что переслать клиенту, done — поток закончен.
type lineDecoder interface {
	decode(line []byte) (text string, done bool, err error)
	// decodeTrailing — разбирать ли недописанную последнюю строку при EOF.
	decodeTrailing() bool
	name() string
}

// lineStream режет тело ответа на строки и отдаёт их декодеру.
// Хвост без '\n' живёт в buf до следующего чтения.
type lineStream struct {
	ctx  context.Context
	body io.ReadCloser
	dec  lineDecoder

	buf     []byte
	scanned int // buf[:scanned] уже проверен, '\n' там нет
	chunk   []byte
	eof     bool
	pending error // отдать после уже выданного фрагмента
	done    bool

	closeOnce sync.Once
	closeErr  error
}

func newLineStream(ctx context.Context, body io.ReadCloser, dec lineDecoder) *lineStream {
	return &lineStream{ctx: ctx, body: body, dec: dec, chunk: make([]byte, readChunk)}
}

func (s *lineStream) Next() (Fragment, error) {
	if s.done {
		return Fragment{}, io.EOF
	}
	if s.pending != nil {
		return Fragment{}, s.pending
	}

	for {
		if i := bytes.IndexByte(s.buf[s.scanned:], '\n'); i >= 0 {
			i += s.scanned
			line := s.buf[:i]
			s.buf = s.buf[i+1:]
			s.scanned = 0
			if frag, ok, err := s.consume(line); err != nil || ok {
				return frag, err
			}
			continue
		}
		s.scanned = len(s.buf)

		if s.eof {
			return s.finishAtEOF()
		}
		if len(s.buf) > maxLine {
			s.buf = nil
			return Fragment{}, s.fail(ports.MalformedPayload(fmt.Sprintf("%s stream line exceeds %d bytes", s.dec.name(), maxLine)))
		}

		if err := s.ctx.Err(); err != nil {
			return Fragment{}, s.fail(err)
		}
		n, err := s.body.Read(s.chunk)
		s.buf = append(s.buf, s.chunk[:n]...)
		switch {
		case errors.Is(err, io.EOF):
			s.eof = true
		case err != nil:
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return Fragment{}, s.fail(ctxErr)
			}
			return Fragment{}, s.fail(ports.NetworkUnreachable(fmt.Errorf("%s stream read: %w", s.dec.name(), err)))
		}
	}
}

// consume отдаёт фрагмент, если строка его дала (ok == true).
func (s *lineStream) consume(line []byte) (Fragment, bool, error) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	text, done, err := s.dec.decode(line)
	if err != nil {
		return Fragment{}, false, s.fail(err)
	}
	if done {
		// остаток буфера после терминатора не читаем
		s.done = true
		s.buf = nil
		s.scanned = 0
		return Fragment{Text: text, Done: true}, true, nil
	}
	if text == "" {
		return Fragment{}, false, nil
	}
	return Fragment{Text: text}, true, nil
}

func (s *lineStream) finishAtEOF() (Fragment, error) {
	truncated := ports.MalformedPayload(s.dec.name() + " stream ended before completion marker")

	if s.dec.decodeTrailing() && len(bytes.TrimSpace(s.buf)) > 0 {
		line := s.buf
		s.buf = nil
		s.scanned = 0
		frag, ok, err := s.consume(line)
		if err != nil || (ok && frag.Done) {
			return frag, err
		}
		if ok {
			s.pending = truncated
			return frag, nil
		}
	}
	s.buf = nil
	return Fragment{}, s.fail(truncated)
}

func (s *lineStream) fail(err error) error {
	s.pending = err
	return err
}

func (s *lineStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
