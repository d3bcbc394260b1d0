package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/hookrelay/hookrelay/internal/config"
)

// FileShipper appends records as JSON lines. Once the file passes MaxSizeMB it is
// renamed to path.1, shifting older backups up to path.MaxBackups.
type FileShipper struct {
	path       string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	f    *os.File
	size int64
}

// NewFileShipper opens (or creates) the target file for appending.
func NewFileShipper(cfg *config.AuditFileConfig) (*FileShipper, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	s := &FileShipper{
		path:       cfg.Path,
		maxBytes:   int64(cfg.MaxSizeMB) << 20,
		maxBackups: cfg.MaxBackups,
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileShipper) open() error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit file: %w", err)
	}
	s.f, s.size = f, info.Size()
	return nil
}

// Ship writes rec as one line.
func (s *FileShipper) Ship(_ context.Context, rec *Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}

	if s.maxBytes > 0 && s.size >= s.maxBytes {
		if err := s.rotate(); err != nil {
			slog.Error("failed to rotate audit file", "path", s.path, "error", err)
			if s.f == nil {
				return err
			}
		}
	}

	n, err := s.f.Write(line)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

func (s *FileShipper) rotate() error {
	if err := s.f.Close(); err != nil {
		return err
	}
	s.f = nil

	if s.maxBackups > 0 {
		_ = os.Remove(backupName(s.path, s.maxBackups))
		for i := s.maxBackups - 1; i >= 1; i-- {
			_ = os.Rename(backupName(s.path, i), backupName(s.path, i+1))
		}
		if err := os.Rename(s.path, backupName(s.path, 1)); err != nil {
			return err
		}
	} else if err := os.Truncate(s.path, 0); err != nil {
		return err
	}
	return s.open()
}

func backupName(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

// Close closes the underlying file.
func (s *FileShipper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
