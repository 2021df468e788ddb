package saga

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TransitionEntry is one line of the transition journal.
type TransitionEntry struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	Event         string    `json:"event"`
	From          State     `json:"from"`
	To            State     `json:"to"`
	At            time.Time `json:"at"`
}

// Journal records applied transitions.
type Journal interface {
	Append(entry TransitionEntry) error
}

// FileJournal appends serialized transition entries to a file, one JSON
// object per line.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileJournal constructs a FileJournal targeting the given path.
func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

// Append writes the entry followed by a newline and syncs the file.
func (j *FileJournal) Append(entry TransitionEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	n, err := j.f.Write(append(data, '\n'))
	if err != nil {
		return err
	}
	if n != len(data)+1 {
		return fmt.Errorf("partial write: wrote %d of %d bytes", n, len(data)+1)
	}

	return j.f.Sync()
}

// Close releases the underlying file handle.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
