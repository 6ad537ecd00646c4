package delivery

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Stdout writes forwarded messages to a writer instead of sending them.
// Used for local runs and `route --deliver`.
type Stdout struct {
	mu  sync.Mutex
	out io.Writer
}

// NewStdout returns a forwarder writing to out.
func NewStdout(out io.Writer) *Stdout {
	return &Stdout{out: out}
}

// Name implements Forwarder.
func (s *Stdout) Name() string { return "stdout" }

// Forward writes a separator line followed by raw.
func (s *Stdout) Forward(_ context.Context, from, to string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.out, "--- forward from=<%s> to=<%s> bytes=%d\n", from, to, len(raw)); err != nil {
		return err
	}
	if _, err := s.out.Write(raw); err != nil {
		return err
	}
	if len(raw) > 0 && raw[len(raw)-1] != '\n' {
		_, err := io.WriteString(s.out, "\n")
		return err
	}
	return nil
}
