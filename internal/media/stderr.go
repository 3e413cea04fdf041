package media

import (
	"bytes"
	"strings"
	"sync"
)

// stderrBuffer collects a child process's stderr. exec.Cmd copies the pipe
// into the writer from its own goroutine until Wait returns, while error
// paths read the text mid-stream, so both sides take the lock.
type stderrBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *stderrBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *stderrBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
