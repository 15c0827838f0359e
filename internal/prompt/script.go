package prompt

import (
	"context"
	"sync"
)

// Script is a Prompter that replays canned answers in order. Labels of
// every question asked are recorded in Asked.
type Script struct {
	mu       sync.Mutex
	Lines    []string
	Secrets  []string
	Confirms []bool
	Asked    []string

	// OnAsk, if set, runs before each question is answered, with the
	// question's label.
	OnAsk func(label string)
}

// ask records label and reports whether ctx still allows an answer.
func (s *Script) ask(ctx context.Context, label string) error {
	s.mu.Lock()
	s.Asked = append(s.Asked, label)
	hook := s.OnAsk
	s.mu.Unlock()
	if hook != nil {
		hook(label)
	}
	return ctx.Err()
}

// Line returns the next canned line.
func (s *Script) Line(ctx context.Context, label string) (string, error) {
	if err := s.ask(ctx, label); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Lines) == 0 {
		return "", ErrNoInput
	}
	line := s.Lines[0]
	s.Lines = s.Lines[1:]
	return line, nil
}

// Secret returns the next canned secret.
func (s *Script) Secret(ctx context.Context, label string) ([]byte, error) {
	if err := s.ask(ctx, label); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Secrets) == 0 {
		return nil, ErrNoInput
	}
	v := s.Secrets[0]
	s.Secrets = s.Secrets[1:]
	return []byte(v), nil
}

// Confirm returns the next canned answer.
func (s *Script) Confirm(ctx context.Context, label string) (bool, error) {
	if err := s.ask(ctx, label); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Confirms) == 0 {
		return false, ErrNoInput
	}
	v := s.Confirms[0]
	s.Confirms = s.Confirms[1:]
	return v, nil
}

// Questions returns a copy of the labels asked so far.
func (s *Script) Questions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Asked...)
}
