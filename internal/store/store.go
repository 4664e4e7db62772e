package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rulegate/internal/models"
)

// ErrVerification indicates a post-write read-back disagreed with what was
// written. The triggering operation must abort rather than report success.
var ErrVerification = fmt.Errorf("store: post-write verification failed")

// Store provides on-disk persistence backed by JSON files. Each logical
// dataset maps to exactly one whitelisted file; writes replace the whole
// document atomically so readers never observe a partial collection.
type Store struct {
	dataDir string
	mu      sync.RWMutex
}

// New creates a new file-backed store.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

// path helpers; the fixed set of files below is the store's whitelist.
func (s *Store) templatesFile() string {
	return filepath.Join(s.dataDir, "templates", "templates.json")
}

func (s *Store) domainRuleStateFile() string {
	return filepath.Join(s.dataDir, "zones", "rule_state.json")
}

func (s *Store) applicationLogFile() string {
	return filepath.Join(s.dataDir, "audit", "application_log.json")
}

func (s *Store) preferencesFile() string {
	return filepath.Join(s.dataDir, "preferences", "preferences.json")
}

func (s *Store) usersFile() string {
	return filepath.Join(s.dataDir, "users", "users.json")
}

func readJSON(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func writeJSONAtomic(path string, in interface{}) error {
	tmp := fmt.Sprintf("%s.tmp-%d", path, time.Now().UnixNano())
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// GetTemplateCollection fetches the full template collection from disk.
func (s *Store) GetTemplateCollection() (models.TemplateCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path := s.templatesFile()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return models.TemplateCollection{Templates: []models.RuleTemplate{}}, nil
		}
		return models.TemplateCollection{}, err
	}
	var col models.TemplateCollection
	if err := readJSON(path, &col); err != nil {
		return models.TemplateCollection{}, err
	}
	if col.Templates == nil {
		col.Templates = []models.RuleTemplate{}
	}
	return col, nil
}

// SaveTemplateCollection persists the entire collection atomically, stamps
// LastUpdated, and verifies the written record count by reading back.
func (s *Store) SaveTemplateCollection(col models.TemplateCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col.LastUpdated = time.Now().UTC()
	path := s.templatesFile()
	if err := writeJSONAtomic(path, col); err != nil {
		return err
	}
	var check models.TemplateCollection
	if err := readJSON(path, &check); err != nil {
		return fmt.Errorf("%w: read-back: %v", ErrVerification, err)
	}
	if len(check.Templates) != len(col.Templates) {
		return fmt.Errorf("%w: wrote %d templates, read %d",
			ErrVerification, len(col.Templates), len(check.Templates))
	}
	return nil
}

// GetDomainRuleState fetches the persisted zone snapshot set.
func (s *Store) GetDomainRuleState() (models.DomainRuleState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path := s.domainRuleStateFile()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return models.DomainRuleState{Zones: map[string]models.DomainRuleStatus{}}, nil
		}
		return models.DomainRuleState{}, err
	}
	var state models.DomainRuleState
	if err := readJSON(path, &state); err != nil {
		return models.DomainRuleState{}, err
	}
	if state.Zones == nil {
		state.Zones = map[string]models.DomainRuleStatus{}
	}
	return state, nil
}

// SaveDomainRuleState replaces the zone snapshot set atomically.
func (s *Store) SaveDomainRuleState(state models.DomainRuleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.LastUpdated = time.Now().UTC()
	return writeJSONAtomic(s.domainRuleStateFile(), state)
}

// GetApplicationLog fetches the persisted propagation audit log.
func (s *Store) GetApplicationLog() ([]models.ApplicationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path := s.applicationLogFile()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return []models.ApplicationLogEntry{}, nil
		}
		return nil, err
	}
	var entries []models.ApplicationLogEntry
	if err := readJSON(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveApplicationLog replaces the audit log atomically.
func (s *Store) SaveApplicationLog(entries []models.ApplicationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.applicationLogFile(), entries)
}

// GetPreferences fetches operator preferences.
func (s *Store) GetPreferences() (models.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path := s.preferencesFile()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return models.Preferences{}, nil
		}
		return models.Preferences{}, err
	}
	var prefs models.Preferences
	if err := readJSON(path, &prefs); err != nil {
		return models.Preferences{}, err
	}
	return prefs, nil
}

// SavePreferences replaces operator preferences atomically.
func (s *Store) SavePreferences(prefs models.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs.UpdatedAt = time.Now().UTC()
	return writeJSONAtomic(s.preferencesFile(), prefs)
}

// GetUsers fetches all operator accounts from disk.
func (s *Store) GetUsers() ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path := s.usersFile()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return []models.User{}, nil
		}
		return nil, err
	}
	var users []models.User
	if err := readJSON(path, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// SaveUsers persists the provided users slice atomically.
func (s *Store) SaveUsers(users []models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.usersFile(), users)
}
