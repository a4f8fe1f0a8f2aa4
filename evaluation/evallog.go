package evaluation

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Log is the append-only evaluation log: one JSON-lines file per calendar
// day, so longitudinal tracking can diff days across model or provider swaps.
type Log struct {
	dir string
	mu  sync.Mutex
}

// NewLog creates the log directory if needed.
func NewLog(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating evaluation log dir: %w", err)
	}
	return &Log{dir: dir}, nil
}

func (l *Log) fileFor(t time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("eval_%s.jsonl", t.Format("20060102")))
}

// Append writes the record to the current day's file. Records are never
// rewritten.
func (l *Log) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.fileFor(rec.Timestamp), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening evaluation log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding evaluation record: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing evaluation record: %w", err)
	}

	return nil
}

// ReadDay returns all records logged on the given day, in append order. A day
// with no log file yields an empty slice.
func (l *Log) ReadDay(day time.Time) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.fileFor(day))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening evaluation log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("corrupt evaluation record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading evaluation log: %w", err)
	}

	return records, nil
}
