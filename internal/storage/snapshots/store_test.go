package snapshots

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tz1211/datadetox/internal/domain/lineage"
	"github.com/tz1211/datadetox/internal/platform/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(newTestLogger(t), t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestFileNameFormat(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)
	got := fileName(KindModels, ts)
	if got != "models_2024-03-01_10-20-30.json" {
		t.Fatalf("fileName = %q", got)
	}
}

func TestLoadLatestPicksGreatestTimestamp(t *testing.T) {
	store := newTestStore(t)

	older := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

	// Written out of order: the latest snapshot is chosen by filename, not
	// by write order.
	if _, err := store.SaveModels([]lineage.ModelNode{{ID: "org/new"}}, newer); err != nil {
		t.Fatalf("SaveModels newer: %v", err)
	}
	if _, err := store.SaveModels([]lineage.ModelNode{{ID: "org/old"}}, older); err != nil {
		t.Fatalf("SaveModels older: %v", err)
	}

	models, found, err := store.LoadLatestModels()
	if err != nil {
		t.Fatalf("LoadLatestModels: %v", err)
	}
	if !found {
		t.Fatal("expected a snapshot to be found")
	}
	if len(models) != 1 || models[0].ID != "org/new" {
		t.Fatalf("loaded wrong snapshot: %+v", models)
	}
}

func TestLoadLatestAbsent(t *testing.T) {
	store := newTestStore(t)

	rels, found, err := store.LoadLatestRelationships()
	if err != nil {
		t.Fatalf("LoadLatestRelationships: %v", err)
	}
	if found || rels != nil {
		t.Fatalf("expected no snapshot, got found=%v rels=%v", found, rels)
	}
}

func TestRelationshipRoundTrip(t *testing.T) {
	store := newTestStore(t)

	in := []lineage.Relationship{{
		SourceID:   "org/model-lora",
		TargetID:   "org/model",
		Type:       lineage.RelAdapters,
		SourceKind: lineage.KindModel,
		TargetKind: lineage.KindModel,
		Metadata:   map[string]string{"method": "name_pattern"},
	}}
	if _, err := store.SaveRelationships(in, time.Time{}); err != nil {
		t.Fatalf("SaveRelationships: %v", err)
	}

	out, found, err := store.LoadLatestRelationships()
	if err != nil || !found {
		t.Fatalf("LoadLatestRelationships: found=%v err=%v", found, err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(out))
	}
	got := out[0]
	if got.SourceID != in[0].SourceID || got.TargetID != in[0].TargetID || got.Type != in[0].Type {
		t.Fatalf("relationship changed across round trip: %+v", got)
	}
	if got.Metadata["method"] != "name_pattern" {
		t.Fatalf("metadata lost: %+v", got.Metadata)
	}
}

func TestSaveSnapshotSharesTimestamp(t *testing.T) {
	store := newTestStore(t)

	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	snap := lineage.GraphSnapshot{
		Models: []lineage.ModelNode{
			{ID: "org/base", Downloads: 10},
			{ID: "org/base-ft"},
		},
		Datasets: []lineage.DatasetNode{{ID: "squad"}},
		Relationships: []lineage.Relationship{{
			SourceID:   "org/base-ft",
			TargetID:   "org/base",
			Type:       lineage.RelFinetuned,
			SourceKind: lineage.KindModel,
			TargetKind: lineage.KindModel,
		}},
	}

	paths, err := store.SaveSnapshot(snap, ts)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	suffix := "2024-05-06_07-08-09.json"
	for name, path := range map[string]string{
		"models":        paths.Models,
		"datasets":      paths.Datasets,
		"relationships": paths.Relationships,
		"metadata":      paths.Metadata,
	} {
		if !strings.HasSuffix(path, suffix) {
			t.Errorf("%s path %q does not share the snapshot timestamp", name, path)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s file missing: %v", name, err)
		}
	}

	meta, found, err := store.LoadLatestMetadata()
	if err != nil || !found {
		t.Fatalf("LoadLatestMetadata: found=%v err=%v", found, err)
	}
	if meta.TotalModels != 2 || meta.TotalDatasets != 1 || meta.TotalRelationships != 1 {
		t.Fatalf("metadata counts wrong: %+v", meta)
	}
	if meta.ScrapeTimestamp != "2024-05-06_07-08-09" {
		t.Fatalf("ScrapeTimestamp = %q", meta.ScrapeTimestamp)
	}
}

func TestRetainDeletesOldestByModTime(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var paths []string
	for i := 0; i < 3; i++ {
		path, err := store.SaveModels([]lineage.ModelNode{{ID: "org/m"}}, base.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("SaveModels: %v", err)
		}
		paths = append(paths, path)
	}

	// Retention goes by modification time, not filename. Make the file with
	// the middle timestamp the stalest on disk and confirm it is the one
	// that gets swept.
	now := time.Now()
	if err := os.Chtimes(paths[0], now, now); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := os.Chtimes(paths[1], now.Add(-2*time.Hour), now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := os.Chtimes(paths[2], now.Add(-time.Hour), now.Add(-time.Hour)); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if err := store.Retain(2, KindModels); err != nil {
		t.Fatalf("Retain: %v", err)
	}

	if _, err := os.Stat(paths[1]); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be deleted, stat err=%v", paths[1], err)
	}
	for _, p := range []string{paths[0], paths[2]} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to survive: %v", p, err)
		}
	}
}

func TestRetainKeepsEverythingUnderLimit(t *testing.T) {
	store := newTestStore(t)

	ts := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	path, err := store.SaveDatasets([]lineage.DatasetNode{{ID: "squad"}}, ts)
	if err != nil {
		t.Fatalf("SaveDatasets: %v", err)
	}

	if err := store.Retain(5, KindDatasets); err != nil {
		t.Fatalf("Retain: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file should survive retention under the limit: %v", err)
	}
}

func TestRetainRejectsNonPositiveKeep(t *testing.T) {
	store := newTestStore(t)

	ts := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
	path, err := store.SaveModels([]lineage.ModelNode{{ID: "org/m"}}, ts)
	if err != nil {
		t.Fatalf("SaveModels: %v", err)
	}

	if err := store.Retain(0, KindModels); err != nil {
		t.Fatalf("Retain(0) should warn and skip, got %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Retain(0) must not delete anything: %v", err)
	}
}
