package sink

import (
	"fmt"
	"io"
	"sync"

	"github.com/ashita-ai/kanshi/internal/model"
)

// Console writes formatted lines to a pair of streams: warning and below go
// to out, error and critical go to errOut.
type Console struct {
	min    model.Severity
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

// NewConsole creates a console sink. Callers normally pass os.Stdout and
// os.Stderr; tests substitute buffers.
func NewConsole(min model.Severity, out, errOut io.Writer) *Console {
	return &Console{min: min, out: out, errOut: errOut}
}

func (c *Console) Name() string                { return "console" }
func (c *Console) MinSeverity() model.Severity { return c.min }

func (c *Console) Write(ev model.Event) error {
	w := c.out
	if model.SeverityAtLeast(ev.Severity, model.SeverityError) {
		w = c.errOut
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(w, formatLine(ev)); err != nil {
		return fmt.Errorf("sink: console write: %w", err)
	}
	return nil
}

func (c *Console) Close() error { return nil }
