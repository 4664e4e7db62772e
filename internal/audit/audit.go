// Package audit keeps the append-only log of completed propagation runs.
package audit

import (
	"time"

	"github.com/google/uuid"

	"rulegate/internal/models"
)

// MaxEntries caps the log; appending beyond it evicts the oldest entry.
const MaxEntries = 100

// Port is the storage surface the log requires.
type Port interface {
	GetApplicationLog() ([]models.ApplicationLogEntry, error)
	SaveApplicationLog([]models.ApplicationLogEntry) error
}

// Log provides append and read access over the persisted entries.
type Log struct {
	store Port
}

// New creates an application log over the given storage port.
func New(store Port) *Log {
	return &Log{store: store}
}

// Append stores a new entry, assigning id and timestamp when absent, and
// evicts the oldest entries beyond the cap.
func (l *Log) Append(entry models.ApplicationLogEntry) (models.ApplicationLogEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entries, err := l.store.GetApplicationLog()
	if err != nil {
		return models.ApplicationLogEntry{}, err
	}
	entries = append(entries, entry)
	if len(entries) > MaxEntries {
		entries = entries[len(entries)-MaxEntries:]
	}
	if err := l.store.SaveApplicationLog(entries); err != nil {
		return models.ApplicationLogEntry{}, err
	}
	return entry, nil
}

// List returns all entries, oldest first.
func (l *Log) List() ([]models.ApplicationLogEntry, error) {
	return l.store.GetApplicationLog()
}
