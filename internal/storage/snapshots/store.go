package snapshots

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tz1211/datadetox/internal/domain/lineage"
	"github.com/tz1211/datadetox/internal/platform/logger"
	"github.com/tz1211/datadetox/internal/utils"
)

// Kind names one snapshot family. Each kind gets its own subdirectory and
// filename prefix, so listings never mix families.
type Kind string

const (
	KindModels        Kind = "models"
	KindDatasets      Kind = "datasets"
	KindRelationships Kind = "relationships"
	KindMetadata      Kind = "metadata"
)

// Kinds lists every snapshot family, in pipeline write order.
var Kinds = []Kind{KindModels, KindDatasets, KindRelationships, KindMetadata}

// timestampLayout keeps filenames lexicographically ordered by time, so the
// latest snapshot is simply the greatest filename.
const timestampLayout = "2006-01-02_15-04-05"

// Metadata is the per-crawl summary written alongside the data kinds.
type Metadata struct {
	TotalModels        int    `json:"total_models"`
	TotalDatasets      int    `json:"total_datasets"`
	TotalRelationships int    `json:"total_relationships"`
	ScrapeTimestamp    string `json:"scrape_timestamp"`
}

// SavedPaths reports where one crawl's four snapshot files landed.
type SavedPaths struct {
	Models        string `json:"models"`
	Datasets      string `json:"datasets"`
	Relationships string `json:"relationships"`
	Metadata      string `json:"metadata"`
}

// Store writes and reads timestamped JSON snapshot files under a base
// directory. Files are immutable once written; history management happens
// only through Retain.
type Store struct {
	root string
	log  *logger.Logger
}

func New(baseLog *logger.Logger, root string) (*Store, error) {
	log := baseLog.With("service", "SnapshotStore")
	for _, kind := range Kinds {
		if err := os.MkdirAll(filepath.Join(root, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot directory for %s: %w", kind, err)
		}
	}
	return &Store{root: root, log: log}, nil
}

func NewFromEnv(baseLog *logger.Logger) (*Store, error) {
	return New(baseLog, utils.GetEnv("DATA_DIR", "data/raw", baseLog))
}

// Dir returns the base directory holding all snapshot kinds.
func (s *Store) Dir() string { return s.root }

func fileName(kind Kind, ts time.Time) string {
	return fmt.Sprintf("%s_%s.json", kind, ts.UTC().Format(timestampLayout))
}

func (s *Store) save(kind Kind, payload any, ts time.Time) (string, error) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	dir := filepath.Join(s.root, string(kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot directory for %s: %w", kind, err)
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s snapshot: %w", kind, err)
	}
	path := filepath.Join(dir, fileName(kind, ts))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write %s snapshot: %w", kind, err)
	}
	return path, nil
}

func (s *Store) SaveModels(models []lineage.ModelNode, ts time.Time) (string, error) {
	if models == nil {
		models = []lineage.ModelNode{}
	}
	path, err := s.save(KindModels, models, ts)
	if err != nil {
		return "", err
	}
	s.log.Info("saved snapshot", "kind", string(KindModels), "records", len(models), "path", path)
	return path, nil
}

func (s *Store) SaveDatasets(datasets []lineage.DatasetNode, ts time.Time) (string, error) {
	if datasets == nil {
		datasets = []lineage.DatasetNode{}
	}
	path, err := s.save(KindDatasets, datasets, ts)
	if err != nil {
		return "", err
	}
	s.log.Info("saved snapshot", "kind", string(KindDatasets), "records", len(datasets), "path", path)
	return path, nil
}

func (s *Store) SaveRelationships(relationships []lineage.Relationship, ts time.Time) (string, error) {
	if relationships == nil {
		relationships = []lineage.Relationship{}
	}
	path, err := s.save(KindRelationships, relationships, ts)
	if err != nil {
		return "", err
	}
	s.log.Info("saved snapshot", "kind", string(KindRelationships), "records", len(relationships), "path", path)
	return path, nil
}

func (s *Store) SaveMetadata(meta Metadata, ts time.Time) (string, error) {
	path, err := s.save(KindMetadata, meta, ts)
	if err != nil {
		return "", err
	}
	s.log.Info("saved snapshot", "kind", string(KindMetadata), "path", path)
	return path, nil
}

// SaveSnapshot writes all four kinds under one shared timestamp, so a crawl
// always leaves a consistent file set behind.
func (s *Store) SaveSnapshot(snap lineage.GraphSnapshot, ts time.Time) (SavedPaths, error) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	var paths SavedPaths
	var err error
	if paths.Models, err = s.SaveModels(snap.Models, ts); err != nil {
		return paths, err
	}
	if paths.Datasets, err = s.SaveDatasets(snap.Datasets, ts); err != nil {
		return paths, err
	}
	if paths.Relationships, err = s.SaveRelationships(snap.Relationships, ts); err != nil {
		return paths, err
	}
	models, datasets, relationships := snap.Counts()
	meta := Metadata{
		TotalModels:        models,
		TotalDatasets:      datasets,
		TotalRelationships: relationships,
		ScrapeTimestamp:    ts.UTC().Format(timestampLayout),
	}
	if paths.Metadata, err = s.SaveMetadata(meta, ts); err != nil {
		return paths, err
	}
	return paths, nil
}

// latestPath returns the lexicographically greatest snapshot file for a
// kind. Absence is a normal outcome, not an error.
func (s *Store) latestPath(kind Kind) (string, bool, error) {
	dir := filepath.Join(s.root, string(kind))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read snapshot directory for %s: %w", kind, err)
	}
	prefix := string(kind) + "_"
	best := ""
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		if name > best {
			best = name
		}
	}
	if best == "" {
		return "", false, nil
	}
	return filepath.Join(dir, best), true, nil
}

func loadInto(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) LoadLatestModels() ([]lineage.ModelNode, bool, error) {
	path, ok, err := s.latestPath(KindModels)
	if err != nil || !ok {
		return nil, false, err
	}
	var out []lineage.ModelNode
	if err := loadInto(path, &out); err != nil {
		return nil, false, fmt.Errorf("load models snapshot %s: %w", path, err)
	}
	s.log.Info("loaded snapshot", "kind", string(KindModels), "records", len(out), "path", path)
	return out, true, nil
}

func (s *Store) LoadLatestDatasets() ([]lineage.DatasetNode, bool, error) {
	path, ok, err := s.latestPath(KindDatasets)
	if err != nil || !ok {
		return nil, false, err
	}
	var out []lineage.DatasetNode
	if err := loadInto(path, &out); err != nil {
		return nil, false, fmt.Errorf("load datasets snapshot %s: %w", path, err)
	}
	s.log.Info("loaded snapshot", "kind", string(KindDatasets), "records", len(out), "path", path)
	return out, true, nil
}

func (s *Store) LoadLatestRelationships() ([]lineage.Relationship, bool, error) {
	path, ok, err := s.latestPath(KindRelationships)
	if err != nil || !ok {
		return nil, false, err
	}
	var out []lineage.Relationship
	if err := loadInto(path, &out); err != nil {
		return nil, false, fmt.Errorf("load relationships snapshot %s: %w", path, err)
	}
	s.log.Info("loaded snapshot", "kind", string(KindRelationships), "records", len(out), "path", path)
	return out, true, nil
}

func (s *Store) LoadLatestMetadata() (*Metadata, bool, error) {
	path, ok, err := s.latestPath(KindMetadata)
	if err != nil || !ok {
		return nil, false, err
	}
	var out Metadata
	if err := loadInto(path, &out); err != nil {
		return nil, false, fmt.Errorf("load metadata snapshot %s: %w", path, err)
	}
	return &out, true, nil
}

// Retain deletes all but the n most-recently-modified snapshot files for a
// kind. Individual delete failures are logged and do not abort the sweep.
func (s *Store) Retain(n int, kind Kind) error {
	if n <= 0 {
		s.log.Warn("retain count must be positive; skipping cleanup", "kind", string(kind), "keep", n)
		return nil
	}
	dir := filepath.Join(s.root, string(kind))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot directory for %s: %w", kind, err)
	}

	type snapshotFile struct {
		name string
		mod  time.Time
	}
	prefix := string(kind) + "_"
	files := make([]snapshotFile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			s.log.Warn("skipping unreadable snapshot file", "file", name, "error", err)
			continue
		}
		files = append(files, snapshotFile{name: name, mod: info.ModTime()})
	}
	if len(files) <= n {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })

	deleted := 0
	for _, f := range files[n:] {
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil {
			s.log.Error("failed to delete old snapshot", "file", f.name, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.log.Info("cleaned up old snapshots", "kind", string(kind), "deleted", deleted, "kept", n)
	}
	return nil
}

// RetainAll applies the same retention limit to every kind.
func (s *Store) RetainAll(n int) {
	for _, kind := range Kinds {
		if err := s.Retain(n, kind); err != nil {
			s.log.Warn("snapshot cleanup failed", "kind", string(kind), "error", err)
		}
	}
}
