// Package prompt reads operator input: plain lines, masked secrets and
// yes/no confirmations.
package prompt

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the operator for input. Every method returns ctx.Err()
// as soon as ctx is cancelled, even while waiting for an answer.
type Prompter interface {
	// Line reads one line of visible input, trimmed.
	Line(ctx context.Context, label string) (string, error)
	// Secret reads one line of masked input, trimmed. The caller owns
	// and zeros the returned slice.
	Secret(ctx context.Context, label string) ([]byte, error)
	// Confirm asks a yes/no question until it gets a valid answer.
	Confirm(ctx context.Context, label string) (bool, error)
}

// ErrNoInput is returned when input ends before an answer was given.
var ErrNoInput = errors.New("prompt: no input")

// Terminal prompts on an input file and writes labels to out. Secrets are
// read with echo disabled when in is a terminal. It is not safe for
// concurrent use.
type Terminal struct {
	in     *os.File
	reader *bufio.Reader
	out    io.Writer

	// pending is a read abandoned by a cancelled prompt. The next prompt
	// takes its result instead of starting a second reader.
	pending chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// NewTerminal creates a Terminal over in and out.
func NewTerminal(in *os.File, out io.Writer) *Terminal {
	return &Terminal{in: in, reader: bufio.NewReader(in), out: out}
}

// Line reads a visible line.
func (t *Terminal) Line(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(t.out, "%s: ", label)
	line, err := t.await(ctx, t.readLine)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(line)), nil
}

// Secret reads a masked line.
func (t *Terminal) Secret(ctx context.Context, label string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fmt.Fprintf(t.out, "%s: ", label)

	fd := int(t.in.Fd())
	if !term.IsTerminal(fd) {
		// Piped input: no echo to disable.
		raw, err := t.await(ctx, t.readLine)
		if err != nil {
			return nil, err
		}
		return trimSecret(raw), nil
	}

	state, err := term.GetState(fd)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	raw, err := t.await(ctx, func() ([]byte, error) { return term.ReadPassword(fd) })
	fmt.Fprintln(t.out)
	if ctx.Err() != nil {
		// The abandoned read still has echo off.
		_ = term.Restore(fd, state)
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return trimSecret(raw), nil
}

// Confirm asks "label [y/n]".
func (t *Terminal) Confirm(ctx context.Context, label string) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprintf(t.out, "%s [y/n]: ", label)
		line, err := t.await(ctx, t.readLine)
		if err != nil {
			return false, err
		}
		if answer, ok := ParseYesNo(string(line)); ok {
			return answer, nil
		}
		fmt.Fprintln(t.out, "Please answer y or n.")
	}
}

// await runs read in the background and waits for it or for ctx. A read
// left behind by cancellation is picked up by the next call.
func (t *Terminal) await(ctx context.Context, read func() ([]byte, error)) ([]byte, error) {
	if t.pending == nil {
		ch := make(chan readResult, 1)
		go func() {
			data, err := read()
			ch <- readResult{data: data, err: err}
		}()
		t.pending = ch
	}

	select {
	case res := <-t.pending:
		t.pending = nil
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Terminal) readLine() ([]byte, error) {
	line, err := t.reader.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return line, nil
		}
		if errors.Is(err, io.EOF) {
			return nil, ErrNoInput
		}
		return nil, fmt.Errorf("read input: %w", err)
	}
	return line, nil
}

// trimSecret returns a trimmed copy of raw and zeros raw.
func trimSecret(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	out := make([]byte, len(trimmed))
	copy(out, trimmed)
	for i := range raw {
		raw[i] = 0
	}
	return out
}

// ParseYesNo interprets an answer. ok is false for anything that is not
// a recognizable yes or no.
func ParseYesNo(s string) (answer, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	default:
		return false, false
	}
}
