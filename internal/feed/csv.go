package feed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/lmartin/tradepipe/internal/model"
)

// CSVSink appends ticks to a flat file, one line per tick. The timestamp is
// the last field of each line so the dedup marker can be recovered by
// reading the tail.
type CSVSink struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewCSVSink opens (or creates) the output file in append mode.
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv sink: %w", err)
	}
	return &CSVSink{path: path, file: f}, nil
}

// Write appends one line and flushes it to disk.
func (s *CSVSink) Write(_ context.Context, tick model.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.WriteString(tick.CSVLine()); err != nil {
		return fmt.Errorf("write csv line: %w", err)
	}
	return s.file.Sync()
}

// LastTimestamp parses the timestamp field of the file's final line.
// Returns 0 for an empty or missing file.
func (s *CSVSink) LastTimestamp(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read csv sink: %w", err)
	}

	data = bytes.TrimRight(data, "\n")
	if len(data) == 0 {
		return 0, nil
	}
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		data = data[i+1:]
	}

	fields := strings.Split(string(data), ",")
	ts, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse csv timestamp: %w", err)
	}
	return ts, nil
}

// Close flushes and closes the file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
