package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when a prompt is abandoned because its context ended.
var ErrInputCancelled = errors.New("input canceled")

type answer struct {
	err  error
	text string
}

// AnswerReader reads prompt answers line by line without blocking past a
// context cancellation. A single goroutine owns the underlying reader, so an
// answer typed after a cancelled prompt is delivered to the next one.
type AnswerReader struct {
	src     io.Reader
	answers chan answer
	start   sync.Once
}

// NewAnswerReader wraps r.
func NewAnswerReader(r io.Reader) *AnswerReader {
	if r == nil {
		panic("answer source cannot be nil")
	}
	return &AnswerReader{src: r, answers: make(chan answer)}
}

func (a *AnswerReader) scan() {
	scanner := bufio.NewScanner(a.src)
	for scanner.Scan() {
		a.answers <- answer{text: scanner.Text()}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	a.answers <- answer{err: err}
	close(a.answers)
}

// Answer returns the next line, trimmed and lower-cased. It returns io.EOF once
// the input is exhausted and ErrInputCancelled when ctx ends first.
func (a *AnswerReader) Answer(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInputCancelled
	}
	a.start.Do(func() { go a.scan() })

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res, ok := <-a.answers:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		return strings.ToLower(strings.TrimSpace(res.text)), nil
	}
}
