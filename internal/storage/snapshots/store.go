// Package snapshots provides file-based storage for portable copies of the
// sample, benchmark and key-value stores.
package snapshots

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fidde/stattest/pkg/models"
)

// Default configuration values
const (
	DefaultSnapshotDir     = "./data/snapshots"
	DefaultMaxSnapshotSize = 256 * 1024 * 1024 // 256MB
	DefaultMaxSnapshots    = 50
	FileExtension          = ".json.gz"
	CurrentVersion         = 1
)

// Config contains snapshot storage configuration.
type Config struct {
	// Dir is the directory where snapshots are stored
	Dir string

	// MaxSnapshotSize is the maximum uncompressed size of one snapshot
	MaxSnapshotSize int64

	// MaxSnapshots is the maximum number of snapshots to keep
	MaxSnapshots int
}

// DefaultConfig returns the default configuration, overridable through
// STATTEST_SNAPSHOT_DIR, STATTEST_MAX_SNAPSHOT_SIZE and
// STATTEST_MAX_SNAPSHOTS.
func DefaultConfig() Config {
	return Config{
		Dir:             getEnvOrDefault("STATTEST_SNAPSHOT_DIR", DefaultSnapshotDir),
		MaxSnapshotSize: getEnvInt64OrDefault("STATTEST_MAX_SNAPSHOT_SIZE", DefaultMaxSnapshotSize),
		MaxSnapshots:    int(getEnvInt64OrDefault("STATTEST_MAX_SNAPSHOTS", DefaultMaxSnapshots)),
	}
}

// Store is a directory of gzip-compressed JSON snapshots.
type Store struct {
	config Config
	mu     sync.RWMutex
}

// New creates a snapshot store, creating its directory if needed.
func New(config Config) (*Store, error) {
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &Store{config: config}, nil
}

// Save writes snap to disk, replacing a snapshot with the same ID.
func (s *Store) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil {
		return errors.New("snapshot cannot be nil")
	}
	if err := models.ValidateSnapshotName(snap.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.listMetadataLocked()
	if err != nil {
		return fmt.Errorf("listing snapshots: %w", err)
	}

	exists := false
	for _, meta := range existing {
		if meta.ID == snap.ID {
			exists = true
			break
		}
	}
	if !exists && len(existing) >= s.config.MaxSnapshots {
		return models.ErrTooManySnapshots
	}

	return writeFile(s.path(snap.ID), snap, s.config.MaxSnapshotSize)
}

// Load reads a snapshot by name.
func (s *Store) Load(ctx context.Context, name string) (*models.Snapshot, error) {
	if err := models.ValidateSnapshotName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.path(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, models.ErrSnapshotNotFound
	}
	return ReadFile(path)
}

// Delete removes a snapshot.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := models.ValidateSnapshotName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return models.ErrSnapshotNotFound
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing snapshot file: %w", err)
	}
	return nil
}

// GetMetadata returns the metadata of one snapshot.
func (s *Store) GetMetadata(ctx context.Context, name string) (*models.SnapshotMetadata, error) {
	if err := models.ValidateSnapshotName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.path(name)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, models.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat snapshot file: %w", err)
	}

	snap, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return metadataOf(name, snap, info.Size()), nil
}

// Exists reports whether a snapshot exists.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := models.ValidateSnapshotName(name); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// List returns metadata for every snapshot, newest first.
func (s *Store) List(ctx context.Context) ([]*models.SnapshotMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listMetadataLocked()
}

func (s *Store) path(name string) string {
	return filepath.Join(s.config.Dir, name+FileExtension)
}

// listMetadataLocked lists all snapshot metadata (must hold lock).
func (s *Store) listMetadataLocked() ([]*models.SnapshotMetadata, error) {
	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}

	var metas []*models.SnapshotMetadata
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, FileExtension) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		snap, err := ReadFile(filepath.Join(s.config.Dir, name))
		if err != nil {
			continue // Skip corrupted files
		}

		metas = append(metas, metadataOf(strings.TrimSuffix(name, FileExtension), snap, info.Size()))
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].Created.After(metas[j].Created)
	})

	return metas, nil
}

func metadataOf(name string, snap *models.Snapshot, size int64) *models.SnapshotMetadata {
	return &models.SnapshotMetadata{
		ID:          name,
		Description: snap.Description,
		Created:     snap.Created,
		Sections:    snap.Sections,
		SizeBytes:   size,
		Stats:       snap.Stats,
	}
}

// WriteFile writes snap as gzip-compressed JSON to path.
func WriteFile(path string, snap *models.Snapshot) error {
	return writeFile(path, snap, 0)
}

func writeFile(path string, snap *models.Snapshot, maxSize int64) error {
	snap.Version = CurrentVersion
	if snap.Created.IsZero() {
		snap.Created = time.Now().UTC()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return models.ErrSnapshotTooLarge
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}
	defer file.Close()

	gw := gzip.NewWriter(file)
	if _, err := gw.Write(data); err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}
	return file.Close()
}

// ReadFile reads a snapshot written by WriteFile.
func ReadFile(path string) (*models.Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	defer file.Close()

	gr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	defer gr.Close()

	data, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	if snap.Version > CurrentVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported version %d", snap.Version, CurrentVersion)
	}
	return &snap, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
