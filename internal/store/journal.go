package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal is an append-only on-disk record of writes the store could
// not land in the database. One JSON object per line; replayable by
// hand or tooling after the outage.
type Journal struct {
	mu   sync.Mutex
	path string
}

// journalEntry is one journaled record.
type journalEntry struct {
	At      time.Time   `json:"at"`
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

// NewJournal creates the journal file's directory if needed.
func NewJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &Journal{path: path}, nil
}

// Append writes one record. Each call opens, syncs and closes the
// file so a crash never loses an acknowledged append.
func (j *Journal) Append(kind string, payload interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	line, err := json.Marshal(journalEntry{At: time.Now().UTC(), Kind: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return f.Sync()
}

// Len returns the number of journaled entries.
func (j *Journal) Len() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	return count, nil
}
