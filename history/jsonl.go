package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/thalesfsp/automl"
)

// maxLineSize bounds one JSON line when reading.
const maxLineSize = 4 * 1024 * 1024

// Writer appends trials as JSON lines. It implements automl.Recorder and is
// safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// NewWriter returns a writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, now: time.Now}
}

// Create opens path for appending, creating it with 0o644 when missing.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}

	w := NewWriter(f)
	w.closer = f

	return w, nil
}

// Record implements automl.Recorder.
func (w *Writer) Record(ctx context.Context, t automl.Trial) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return w.Write(FromTrial(t, w.now()))
}

// Write appends one record.
func (w *Writer) Write(r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	return nil
}

// Close closes the file opened by Create. It is a no-op for NewWriter.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closer == nil {
		return nil
	}

	err := w.closer.Close()
	w.closer = nil

	return err
}

// Read decodes JSON lines. Blank lines are skipped; a malformed line is an
// error naming its line number.
func Read(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		records []Record
		lineNo  int
	)

	for scanner.Scan() {
		lineNo++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	return records, nil
}

// Load reads the history file at path. A missing file holds no records.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	return Read(f)
}
