package main

// Standalone report over the local snapshot directory: how many files each
// kind has accumulated, how many records the latest snapshot of each kind
// holds, and the most-downloaded models in the latest model snapshot.
//
// Usage: go run scripts/snapshot_stats.go [-dir data/raw] [-top 10]

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type kindSummary struct {
	Kind        string `json:"kind"`
	Files       int    `json:"files"`
	LatestFile  string `json:"latest_file,omitempty"`
	LatestCount int    `json:"latest_count"`
}

type topModel struct {
	ID        string `json:"id"`
	Downloads int64  `json:"downloads"`
}

type report struct {
	Root      string        `json:"root"`
	Kinds     []kindSummary `json:"kinds"`
	TopModels []topModel    `json:"top_models,omitempty"`
}

var snapshotKinds = []string{"models", "datasets", "relationships", "metadata"}

func main() {
	dir := flag.String("dir", "data/raw", "Snapshot directory root")
	top := flag.Int("top", 10, "Number of top models to list")
	flag.Parse()

	out := report{Root: *dir}

	for _, kind := range snapshotKinds {
		summary, latestPath, err := summarizeKind(*dir, kind)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s snapshots: %v\n", kind, err)
			os.Exit(1)
		}
		out.Kinds = append(out.Kinds, summary)

		if kind == "models" && latestPath != "" && *top > 0 {
			models, err := loadModels(latestPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", latestPath, err)
				os.Exit(1)
			}
			sort.Slice(models, func(i, j int) bool { return models[i].Downloads > models[j].Downloads })
			if len(models) > *top {
				models = models[:*top]
			}
			out.TopModels = models
		}
	}

	blob, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(blob))
}

// summarizeKind counts a kind's snapshot files and the records in its
// latest one. Timestamped names sort lexicographically, so the greatest
// name is the newest snapshot.
func summarizeKind(root, kind string) (kindSummary, string, error) {
	summary := kindSummary{Kind: kind}

	dir := filepath.Join(root, kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return summary, "", nil
		}
		return summary, "", err
	}

	latest := ""
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, kind+"_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		summary.Files++
		if name > latest {
			latest = name
		}
	}
	if latest == "" {
		return summary, "", nil
	}

	path := filepath.Join(dir, latest)
	summary.LatestFile = latest
	count, err := countRecords(path, kind)
	if err != nil {
		return summary, "", err
	}
	summary.LatestCount = count
	return summary, path, nil
}

func countRecords(path, kind string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	// The metadata kind is a single object, not an array.
	if kind == "metadata" {
		return 1, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func loadModels(path string) ([]topModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var models []topModel
	if err := json.Unmarshal(raw, &models); err != nil {
		return nil, err
	}
	return models, nil
}
