package sink

import (
	"fmt"
	"os"
	"sync"

	"github.com/ashita-ai/kanshi/internal/model"
)

// File appends formatted lines to a text file with size-based rotation.
// When the active file would exceed maxSize, it is renamed to <path>.1,
// existing backups shift up, and the backup beyond backupCount is dropped.
type File struct {
	path        string
	min         model.Severity
	maxSize     int64
	backupCount int

	mu   sync.Mutex // serializes writes and rotation
	f    *os.File
	size int64
}

// NewFile opens (or creates) the log file for appending. The path must be
// writable; failure here is a configuration error surfaced to the caller.
func NewFile(path string, min model.Severity, maxSize int64, backupCount int) (*File, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("sink: file %s: max size must be positive", path)
	}
	if backupCount < 0 {
		return nil, fmt.Errorf("sink: file %s: backup count must not be negative", path)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sink: stat log file: %w", err)
	}
	return &File{
		path:        path,
		min:         min,
		maxSize:     maxSize,
		backupCount: backupCount,
		f:           f,
		size:        info.Size(),
	}, nil
}

func (s *File) Name() string                { return "file" }
func (s *File) MinSeverity() model.Severity { return s.min }

func (s *File) Write(ev model.Event) error {
	line := formatLine(ev) + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size > 0 && s.size+int64(len(line)) > s.maxSize {
		if err := s.rotate(); err != nil {
			return fmt.Errorf("sink: rotate %s: %w", s.path, err)
		}
	}
	n, err := s.f.WriteString(line)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("sink: write %s: %w", s.path, err)
	}
	return nil
}

// rotate shifts path.N → path.N+1 (dropping the oldest), moves the active
// file to path.1, and reopens a fresh active file. Caller holds s.mu.
func (s *File) rotate() error {
	if err := s.f.Close(); err != nil {
		return err
	}

	if s.backupCount == 0 {
		// No backups retained: start over in place.
		f, err := os.OpenFile(s.path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		s.f = f
		s.size = 0
		return nil
	}

	oldest := fmt.Sprintf("%s.%d", s.path, s.backupCount)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return err
	}
	for i := s.backupCount - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", s.path, i)
		to := fmt.Sprintf("%s.%d", s.path, i+1)
		if err := os.Rename(from, to); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.Rename(s.path, s.path+".1"); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.f = f
	s.size = 0
	return nil
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
