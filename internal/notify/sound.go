package notify

import (
	"io"
	"os"
)

// Sound is the best-effort audio cue played when an order becomes
// ready. Failures are swallowed by callers, never surfaced.
type Sound interface {
	Play() error
}

// TerminalBell rings the terminal bell.
type TerminalBell struct {
	W io.Writer
}

func NewTerminalBell() *TerminalBell {
	return &TerminalBell{W: os.Stdout}
}

func (b *TerminalBell) Play() error {
	_, err := b.W.Write([]byte("\a"))
	return err
}
