package graph

import (
	"strings"

	"github.com/tz1211/datadetox/internal/domain/lineage"
	"github.com/tz1211/datadetox/internal/platform/logger"
)

// Builder assembles crawl output into a GraphSnapshot the store can load.
// It is deliberately tolerant: a record that cannot be used is logged with
// its reason and dropped, and the batch always completes.
type Builder struct {
	log *logger.Logger
}

func NewBuilder(baseLog *logger.Logger) *Builder {
	return &Builder{
		log: baseLog.With("service", "GraphBuilder"),
	}
}

// Build validates models, relationships and datasets, then synthesizes a
// stub DatasetNode for every dataset-kind relationship target no supplied
// dataset describes. Synthesis always runs; when an explicit dataset list
// is given it wins for the ids it covers. Duplicate-entity reconciliation
// is left to the store's upserts.
func (b *Builder) Build(models []lineage.ModelNode, relationships []lineage.Relationship, datasets []lineage.DatasetNode) lineage.GraphSnapshot {
	b.log.Info(
		"building graph snapshot",
		"models", len(models),
		"datasets", len(datasets),
		"relationships", len(relationships),
	)

	snap := lineage.GraphSnapshot{
		Models:        make([]lineage.ModelNode, 0, len(models)),
		Datasets:      make([]lineage.DatasetNode, 0, len(datasets)),
		Relationships: make([]lineage.Relationship, 0, len(relationships)),
	}

	for _, m := range models {
		if strings.TrimSpace(m.ID) == "" {
			b.log.Warn("dropping model without id")
			continue
		}
		if m.Author == "" {
			m.Author = lineage.AuthorFromID(m.ID)
		}
		snap.Models = append(snap.Models, m)
	}

	described := map[string]bool{}
	for _, d := range datasets {
		if strings.TrimSpace(d.ID) == "" {
			b.log.Warn("dropping dataset without id")
			continue
		}
		if d.Tags == nil {
			d.Tags = []string{}
		}
		snap.Datasets = append(snap.Datasets, d)
		described[d.ID] = true
	}

	for _, r := range relationships {
		if err := r.Validate(); err != nil {
			b.log.Warn("dropping relationship", "reason", err, "source", r.SourceID, "target", r.TargetID)
			continue
		}
		snap.Relationships = append(snap.Relationships, r)

		if r.TargetKind == lineage.KindDataset && !described[r.TargetID] {
			described[r.TargetID] = true
			snap.Datasets = append(snap.Datasets, lineage.StubDataset(r.TargetID))
		}
	}

	m, d, rel := snap.Counts()
	b.log.Info("graph snapshot built", "models", m, "datasets", d, "relationships", rel)
	return snap
}
