package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ashita-ai/kanshi/internal/model"
)

// JSONL appends one self-contained JSON object per event to a file.
// Each write is a single syscall under the sink's lock, so lines are never
// partial or interleaved. Downstream aggregators depend on one-line-per-event
// stability of the schema in model.Event.
type JSONL struct {
	path string
	min  model.Severity

	mu sync.Mutex
	f  *os.File
}

// NewJSONL opens (or creates) the JSON-lines file for appending.
func NewJSONL(path string, min model.Severity) (*JSONL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open json log file: %w", err)
	}
	return &JSONL{path: path, min: min, f: f}, nil
}

func (s *JSONL) Name() string                { return "json" }
func (s *JSONL) MinSeverity() model.Severity { return s.min }

func (s *JSONL) Write(ev model.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sink: marshal event: %w", err)
	}
	raw = append(raw, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(raw); err != nil {
		return fmt.Errorf("sink: write %s: %w", s.path, err)
	}
	return nil
}

func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
