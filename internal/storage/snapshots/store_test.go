package snapshots

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fidde/stattest/pkg/models"
)

func newTestStore(t *testing.T, maxSnapshots int) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := New(Config{
		Dir:             dir,
		MaxSnapshotSize: 10 * 1024 * 1024,
		MaxSnapshots:    maxSnapshots,
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store, dir
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, dir := newTestStore(t, 10)
	ctx := context.Background()

	snap := &models.Snapshot{
		ID:          "baseline",
		Description: "Exponential samples",
		Sections:    []string{models.SectionSamples},
		Data: models.SnapshotData{
			Samples: []*models.SerializedSampleSet{
				{Code: "exp(1)", Size: 3, Samples: [][]float64{{0.1, 0.2, 0.3}, {1e-300, 2, 3}}},
			},
		},
		Stats: models.SnapshotStats{SampleCount: 2, Codes: []string{"exp(1)"}},
	}

	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "baseline.json.gz")); err != nil {
		t.Errorf("Snapshot file was not created: %v", err)
	}

	loaded, err := store.Load(ctx, "baseline")
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}

	if loaded.Version != CurrentVersion {
		t.Errorf("Version mismatch: got %d, want %d", loaded.Version, CurrentVersion)
	}
	if loaded.Description != snap.Description {
		t.Errorf("Description mismatch: got %s, want %s", loaded.Description, snap.Description)
	}
	if loaded.Created.IsZero() {
		t.Error("Created timestamp was not set")
	}
	if len(loaded.Data.Samples) != 1 || len(loaded.Data.Samples[0].Samples) != 2 {
		t.Fatalf("unexpected samples: %+v", loaded.Data.Samples)
	}
	if got := loaded.Data.Samples[0].Samples[1][0]; got != 1e-300 {
		t.Errorf("sample value mismatch: got %v, want 1e-300", got)
	}
}

func TestStore_LoadNotFound(t *testing.T) {
	store, _ := newTestStore(t, 10)

	_, err := store.Load(context.Background(), "missing")
	if !errors.Is(err, models.ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestStore_InvalidName(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	for _, name := range []string{"", "Upper", "../escape", "-lead", "trail-"} {
		if err := store.Save(ctx, &models.Snapshot{ID: name}); !errors.Is(err, models.ErrInvalidSnapshotName) {
			t.Errorf("Save(%q): expected ErrInvalidSnapshotName, got %v", name, err)
		}
		if _, err := store.Load(ctx, name); !errors.Is(err, models.ErrInvalidSnapshotName) {
			t.Errorf("Load(%q): expected ErrInvalidSnapshotName, got %v", name, err)
		}
	}
}

func TestStore_Delete(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	if err := store.Save(ctx, &models.Snapshot{ID: "gone"}); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}
	exists, err := store.Exists(ctx, "gone")
	if err != nil || !exists {
		t.Fatalf("Exists: got %v, %v", exists, err)
	}
	meta, err := store.GetMetadata(ctx, "gone")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if meta.ID != "gone" || meta.SizeBytes <= 0 {
		t.Errorf("unexpected metadata: %+v", meta)
	}

	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Failed to delete snapshot: %v", err)
	}
	if err := store.Delete(ctx, "gone"); !errors.Is(err, models.ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound on second delete, got %v", err)
	}
	if exists, _ := store.Exists(ctx, "gone"); exists {
		t.Error("snapshot still exists after delete")
	}
	if _, err := store.GetMetadata(ctx, "gone"); !errors.Is(err, models.ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	store, dir := newTestStore(t, 10)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		snap := &models.Snapshot{
			ID:      name,
			Created: base.Add(time.Duration(i) * time.Hour),
			Stats:   models.SnapshotStats{ValueCount: i},
		}
		if err := store.Save(ctx, snap); err != nil {
			t.Fatalf("Failed to save %s: %v", name, err)
		}
	}

	// Corrupted files are skipped
	if err := os.WriteFile(filepath.Join(dir, "broken.json.gz"), []byte("not gzip"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	metas, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(metas) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(metas))
	}

	want := []string{"third", "second", "first"}
	for i, meta := range metas {
		if meta.ID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, meta.ID, want[i])
		}
		if meta.SizeBytes <= 0 {
			t.Errorf("%s: expected positive size", meta.ID)
		}
	}
	if metas[0].Stats.ValueCount != 2 {
		t.Errorf("expected stats to be carried, got %+v", metas[0].Stats)
	}
}

func TestStore_Limits(t *testing.T) {
	store, _ := newTestStore(t, 2)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		if err := store.Save(ctx, &models.Snapshot{ID: name}); err != nil {
			t.Fatalf("Failed to save %s: %v", name, err)
		}
	}

	if err := store.Save(ctx, &models.Snapshot{ID: "c"}); !errors.Is(err, models.ErrTooManySnapshots) {
		t.Errorf("expected ErrTooManySnapshots, got %v", err)
	}

	// Overwriting an existing snapshot does not count against the limit
	if err := store.Save(ctx, &models.Snapshot{ID: "a", Description: "again"}); err != nil {
		t.Errorf("overwrite failed: %v", err)
	}

	small, err := New(Config{Dir: t.TempDir(), MaxSnapshotSize: 16, MaxSnapshots: 10})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	big := &models.Snapshot{ID: "big", Description: "far more than sixteen bytes of json"}
	if err := small.Save(ctx, big); !errors.Is(err, models.ErrSnapshotTooLarge) {
		t.Errorf("expected ErrSnapshotTooLarge, got %v", err)
	}
}

func TestReadFile_NewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.json.gz")

	snap := &models.Snapshot{ID: "future"}
	if err := WriteFile(path, snap); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := ReadFile(path); err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	// writeFile always stamps the current version, so bump it by hand
	snap.Version = CurrentVersion + 1
	data := mustGzipJSON(t, snap)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Error("expected error for newer snapshot version")
	}
}

func TestDefaultConfigFromEnv(t *testing.T) {
	t.Setenv("STATTEST_SNAPSHOT_DIR", "/tmp/snaps")
	t.Setenv("STATTEST_MAX_SNAPSHOTS", "7")
	t.Setenv("STATTEST_MAX_SNAPSHOT_SIZE", "bogus")

	cfg := DefaultConfig()
	if cfg.Dir != "/tmp/snaps" {
		t.Errorf("Dir: got %s", cfg.Dir)
	}
	if cfg.MaxSnapshots != 7 {
		t.Errorf("MaxSnapshots: got %d", cfg.MaxSnapshots)
	}
	if cfg.MaxSnapshotSize != DefaultMaxSnapshotSize {
		t.Errorf("MaxSnapshotSize: got %d", cfg.MaxSnapshotSize)
	}
}
