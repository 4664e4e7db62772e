// Package backup produces local snapshots of every persisted dataset so an
// operator can roll back a bad bulk propagation or discovery run.
package backup

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"rulegate/internal/models"
	"rulegate/internal/store"
)

const (
	schemaVersion    = "1.0"
	defaultRetention = 14
	snapshotPrefix   = "rulegate_snapshot_"
	snapshotSuffix   = ".json.gz"
)

// ErrSnapshotInProgress is returned when a snapshot is already running.
var ErrSnapshotInProgress = errors.New("snapshot already running")

// Bundle is the serialized form of one snapshot.
type Bundle struct {
	SchemaVersion string                       `json:"schema_version"`
	CreatedAt     time.Time                    `json:"created_at"`
	Reason        string                       `json:"reason,omitempty"`
	Templates     models.TemplateCollection    `json:"templates"`
	RuleState     models.DomainRuleState       `json:"rule_state"`
	Log           []models.ApplicationLogEntry `json:"log,omitempty"`
	Preferences   models.Preferences           `json:"preferences"`
	Users         []models.User                `json:"users,omitempty"`
}

// Descriptor identifies one snapshot on disk.
type Descriptor struct {
	Name      string    `json:"name"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Service writes and lists snapshot archives under the data directory.
type Service struct {
	store     *store.Store
	dir       string
	retention int

	mu      sync.Mutex
	running bool
}

// New creates a snapshot service. Retention <= 0 falls back to the default.
func New(st *store.Store, dataDir string, retention int) *Service {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Service{
		store:     st,
		dir:       filepath.Join(dataDir, "backups"),
		retention: retention,
	}
}

// Create collects every dataset into a gzip JSON bundle and writes it with
// a temp-file rename so a crash never leaves a half-written archive. Old
// snapshots beyond the retention count are pruned afterwards.
func (s *Service) Create(reason string) (Descriptor, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Descriptor{}, ErrSnapshotInProgress
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	bundle, err := s.collect(reason)
	if err != nil {
		return Descriptor{}, err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Descriptor{}, err
	}
	name := snapshotPrefix + bundle.CreatedAt.Format("20060102_150405") + snapshotSuffix
	path := filepath.Join(s.dir, name)
	if err := writeBundle(path, bundle); err != nil {
		return Descriptor{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return Descriptor{}, err
	}
	s.prune()
	return Descriptor{Name: name, Bytes: info.Size(), CreatedAt: bundle.CreatedAt}, nil
}

// List returns the snapshots on disk, newest first.
func (s *Service) List() ([]Descriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Descriptor, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isSnapshotName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Descriptor{Name: entry.Name(), Bytes: info.Size(), CreatedAt: info.ModTime().UTC()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Read loads a snapshot bundle back from disk.
func (s *Service) Read(name string) (Bundle, error) {
	if !isSnapshotName(name) || strings.ContainsAny(name, "/\\") {
		return Bundle{}, fmt.Errorf("invalid snapshot name %q", name)
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return Bundle{}, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return Bundle{}, err
	}
	defer gz.Close()
	var bundle Bundle
	if err := json.NewDecoder(gz).Decode(&bundle); err != nil {
		return Bundle{}, err
	}
	return bundle, nil
}

func (s *Service) collect(reason string) (Bundle, error) {
	templates, err := s.store.GetTemplateCollection()
	if err != nil {
		return Bundle{}, fmt.Errorf("collect templates: %w", err)
	}
	state, err := s.store.GetDomainRuleState()
	if err != nil {
		return Bundle{}, fmt.Errorf("collect rule state: %w", err)
	}
	entries, err := s.store.GetApplicationLog()
	if err != nil {
		return Bundle{}, fmt.Errorf("collect log: %w", err)
	}
	prefs, err := s.store.GetPreferences()
	if err != nil {
		return Bundle{}, fmt.Errorf("collect preferences: %w", err)
	}
	users, err := s.store.GetUsers()
	if err != nil {
		return Bundle{}, fmt.Errorf("collect users: %w", err)
	}
	return Bundle{
		SchemaVersion: schemaVersion,
		CreatedAt:     time.Now().UTC(),
		Reason:        reason,
		Templates:     templates,
		RuleState:     state,
		Log:           entries,
		Preferences:   prefs,
		Users:         users,
	}, nil
}

func writeBundle(path string, bundle Bundle) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(tmp)
	if err := json.NewEncoder(gz).Encode(bundle); err != nil {
		gz.Close()
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// prune removes the oldest snapshots beyond the retention count.
func (s *Service) prune() {
	snapshots, err := s.List()
	if err != nil || len(snapshots) <= s.retention {
		return
	}
	for _, old := range snapshots[s.retention:] {
		_ = os.Remove(filepath.Join(s.dir, old.Name))
	}
}

func isSnapshotName(name string) bool {
	return strings.HasPrefix(name, snapshotPrefix) && strings.HasSuffix(name, snapshotSuffix)
}
