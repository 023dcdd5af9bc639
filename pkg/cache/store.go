package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/timoknapp/contest-dashboard/pkg/logger"
	"github.com/timoknapp/contest-dashboard/pkg/models"
)

const (
	// BoltDB bucket name for storing client preferences
	PreferencesBucket = "preferences"
)

// ErrInvalidTheme is returned when a theme other than light or dark is stored
var ErrInvalidTheme = errors.New("theme must be \"light\" or \"dark\"")

// Preference is what is kept per client
type Preference struct {
	Theme     string `json:"theme"`
	UpdatedAt int64  `json:"updated_at"` // Unix timestamp of the last change
}

// Store provides an interface for client preference operations
type Store interface {
	Get(clientID string) (Preference, bool, error)
	SetTheme(clientID, theme string) error
	Delete(clientID string) error
	ForEach(fn func(clientID string, value Preference) error) error
	GetStatistics() (map[string]int, error)
	Close() error
}

// BoltStore implements Store interface using BoltDB for persistence
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltDB-backed preference store
func NewBoltStore(dbPath string) (*BoltStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(PreferencesBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	logger.Info("BoltDB preference store initialized at: %s", dbPath)
	return &BoltStore{db: db}, nil
}

// Get retrieves the preferences of a client
func (s *BoltStore) Get(clientID string) (Preference, bool, error) {
	var pref Preference
	var found bool

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(PreferencesBucket))
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte(clientID))
		if data == nil {
			return nil
		}

		found = true
		return json.Unmarshal(data, &pref)
	})

	if err != nil {
		return Preference{}, false, fmt.Errorf("failed to get preferences for %s: %w", clientID, err)
	}

	return pref, found, nil
}

// SetTheme stores the theme of a client
func (s *BoltStore) SetTheme(clientID, theme string) error {
	if !ValidTheme(theme) {
		return ErrInvalidTheme
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(PreferencesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket %s does not exist", PreferencesBucket)
		}

		data, err := json.Marshal(Preference{Theme: theme, UpdatedAt: time.Now().Unix()})
		if err != nil {
			return fmt.Errorf("failed to marshal preference: %w", err)
		}

		return bucket.Put([]byte(clientID), data)
	})
}

// Delete removes the preferences of a client
func (s *BoltStore) Delete(clientID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(PreferencesBucket))
		if bucket == nil {
			return nil
		}

		return bucket.Delete([]byte(clientID))
	})
}

// ForEach iterates over all stored preferences
func (s *BoltStore) ForEach(fn func(clientID string, value Preference) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(PreferencesBucket))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var pref Preference
			if err := json.Unmarshal(v, &pref); err != nil {
				logger.Error("Failed to unmarshal preference for client %s: %v", string(k), err)
				return nil
			}

			return fn(string(k), pref)
		})
	})
}

// Close closes the BoltDB database
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetStatistics counts stored preferences by theme
func (s *BoltStore) GetStatistics() (map[string]int, error) {
	stats := map[string]int{
		"total_entries":  0,
		models.ThemeLight: 0,
		models.ThemeDark:  0,
	}

	err := s.ForEach(func(_ string, pref Preference) error {
		stats["total_entries"]++
		stats[pref.Theme]++
		return nil
	})

	return stats, err
}

// ValidTheme reports whether theme is one of the supported values
func ValidTheme(theme string) bool {
	return theme == models.ThemeLight || theme == models.ThemeDark
}
