package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tz1211/datadetox/internal/domain/lineage"
	pkgerrors "github.com/tz1211/datadetox/internal/pkg/errors"
	"github.com/tz1211/datadetox/internal/platform/logger"
	"github.com/tz1211/datadetox/internal/platform/neo4jdb"
)

// ItemFailure records one row an upsert could not write.
type ItemFailure struct {
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// BatchResult summarizes one upsert pass. Attempted counts the caller's
// input; rows rejected before reaching the store (missing id) and rows the
// store refused both land in Failures.
type BatchResult struct {
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// LoadReport aggregates the three phases of a snapshot load.
type LoadReport struct {
	Models        BatchResult `json:"models"`
	Datasets      BatchResult `json:"datasets"`
	Relationships BatchResult `json:"relationships"`
}

// LineageStore is the Neo4j-backed property graph holding Model and Dataset
// nodes keyed by id and the typed derivation edges between them. Upserts are
// idempotent MERGEs with last-write-wins property semantics, so reloading a
// snapshot never duplicates nodes or edges.
type LineageStore interface {
	Ping(ctx context.Context) error
	UpsertModels(ctx context.Context, models []lineage.ModelNode) (BatchResult, error)
	UpsertDatasets(ctx context.Context, datasets []lineage.DatasetNode) (BatchResult, error)
	UpsertRelationship(ctx context.Context, rel lineage.Relationship) error
	Load(ctx context.Context, snap lineage.GraphSnapshot) (LoadReport, error)
	Clear(ctx context.Context) error
	Statistics(ctx context.Context) (lineage.Statistics, error)
	Lineage(ctx context.Context, entityID string) (lineage.LineageResult, error)
}

type lineageStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewLineageStore(client *neo4jdb.Client, baseLog *logger.Logger) LineageStore {
	log := baseLog.With("repo", "LineageStore")
	return &lineageStore{client: client, log: log}
}

// ready rejects calls when no Neo4j client was configured. Unlike optional
// mirrors, this graph is the primary store; silently dropping writes would
// corrupt every downstream query.
func (s *lineageStore) ready() error {
	if s.client == nil || s.client.Driver == nil {
		return fmt.Errorf("lineage store: %w: neo4j client not configured", pkgerrors.ErrConnectivity)
	}
	return nil
}

func (s *lineageStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

const upsertModelsCypher = `
UNWIND $rows AS r
MERGE (n:Model {id: r.id})
SET n = r
`

const upsertDatasetsCypher = `
UNWIND $rows AS r
MERGE (n:Dataset {id: r.id})
SET n = r
`

func modelRow(m lineage.ModelNode, syncedAt string) map[string]any {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":           m.ID,
		"author":       m.Author,
		"sha":          m.SHA,
		"downloads":    m.Downloads,
		"likes":        m.Likes,
		"tags":         tags,
		"library":      m.Library,
		"pipeline_tag": m.PipelineTag,
		"private":      m.Private,
		"url":          m.URL,
		"created_at":   m.CreatedAt,
		"updated_at":   m.UpdatedAt,
		"synced_at":    syncedAt,
	}
}

func datasetRow(d lineage.DatasetNode, syncedAt string) map[string]any {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":        d.ID,
		"author":    d.Author,
		"downloads": d.Downloads,
		"tags":      tags,
		"synced_at": syncedAt,
	}
}

func (s *lineageStore) UpsertModels(ctx context.Context, models []lineage.ModelNode) (BatchResult, error) {
	res := BatchResult{Attempted: len(models)}
	if err := s.ready(); err != nil {
		return res, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows := make([]map[string]any, 0, len(models))
	for _, m := range models {
		if m.ID == "" {
			res.Failures = append(res.Failures, ItemFailure{Reason: "missing model id"})
			continue
		}
		rows = append(rows, modelRow(m, now))
	}
	s.upsertRows(ctx, upsertModelsCypher, rows, &res)
	return res, nil
}

func (s *lineageStore) UpsertDatasets(ctx context.Context, datasets []lineage.DatasetNode) (BatchResult, error) {
	res := BatchResult{Attempted: len(datasets)}
	if err := s.ready(); err != nil {
		return res, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows := make([]map[string]any, 0, len(datasets))
	for _, d := range datasets {
		if d.ID == "" {
			res.Failures = append(res.Failures, ItemFailure{Reason: "missing dataset id"})
			continue
		}
		rows = append(rows, datasetRow(d, now))
	}
	s.upsertRows(ctx, upsertDatasetsCypher, rows, &res)
	return res, nil
}

// upsertRows writes rows in one batched UNWIND, falling back to per-row
// writes when the batch fails so a single bad row cannot sink the rest.
func (s *lineageStore) upsertRows(ctx context.Context, cypher string, rows []map[string]any, res *BatchResult) {
	if len(rows) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	err := writeRows(ctx, session, cypher, rows)
	if err == nil {
		res.Succeeded += len(rows)
		return
	}
	s.log.Warn("batch upsert failed; retrying rows individually", "rows", len(rows), "error", err)

	for _, row := range rows {
		if err := writeRows(ctx, session, cypher, []map[string]any{row}); err != nil {
			id, _ := row["id"].(string)
			res.Failures = append(res.Failures, ItemFailure{ID: id, Reason: err.Error()})
			continue
		}
		res.Succeeded++
	}
}

func writeRows(ctx context.Context, session neo4j.SessionWithContext, cypher string, rows []map[string]any) error {
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"rows": rows})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// nodeLabel maps an entity kind to its graph label. Kinds are validated
// before this is interpolated into Cypher.
func nodeLabel(k lineage.EntityKind) string {
	if k == lineage.KindDataset {
		return "Dataset"
	}
	return "Model"
}

// UpsertRelationship merges one typed edge between two already-loaded nodes.
// Both endpoints must exist: a MATCH that binds nothing yields no row, and
// that surfaces as ErrEndpointMissing instead of silently writing nothing.
func (s *lineageStore) UpsertRelationship(ctx context.Context, rel lineage.Relationship) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := rel.Validate(); err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrInvalidArgument, err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	props := map[string]any{
		"synced_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range rel.Metadata {
		props[k] = v
	}

	// Labels and the edge type come from validated enums, never caller text.
	cypher := fmt.Sprintf(`
MATCH (a:%s {id: $source_id})
MATCH (b:%s {id: $target_id})
MERGE (a)-[e:%s]->(b)
SET e += $props
RETURN a.id AS matched
`, nodeLabel(rel.SourceKind), nodeLabel(rel.TargetKind), rel.Type.EdgeLabel())

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{
			"source_id": rel.SourceID,
			"target_id": rel.TargetID,
			"props":     props,
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return len(records) > 0, nil
	})
	if err != nil {
		return fmt.Errorf("upsert relationship %s -[%s]-> %s: %w", rel.SourceID, rel.Type, rel.TargetID, err)
	}
	if matched, _ := out.(bool); !matched {
		return fmt.Errorf("relationship %s -[%s]-> %s: %w", rel.SourceID, rel.Type, rel.TargetID, pkgerrors.ErrEndpointMissing)
	}
	return nil
}

// Load writes a snapshot in dependency order: models, then datasets, then
// relationships. Edges are written one by one so a bad edge is logged and
// skipped without losing the rest of the load.
func (s *lineageStore) Load(ctx context.Context, snap lineage.GraphSnapshot) (LoadReport, error) {
	var report LoadReport
	if err := s.ready(); err != nil {
		return report, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.ensureSchema(ctx)

	models, datasets, relationships := snap.Counts()
	s.log.Info("loading snapshot into graph", "models", models, "datasets", datasets, "relationships", relationships)

	var err error
	if report.Models, err = s.UpsertModels(ctx, snap.Models); err != nil {
		return report, fmt.Errorf("load models: %w", err)
	}
	if report.Datasets, err = s.UpsertDatasets(ctx, snap.Datasets); err != nil {
		return report, fmt.Errorf("load datasets: %w", err)
	}

	report.Relationships.Attempted = len(snap.Relationships)
	for _, rel := range snap.Relationships {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := s.UpsertRelationship(ctx, rel); err != nil {
			s.log.Warn("skipping relationship",
				"source", rel.SourceID,
				"target", rel.TargetID,
				"type", string(rel.Type),
				"error", err,
			)
			report.Relationships.Failures = append(report.Relationships.Failures, ItemFailure{
				ID:     rel.SourceID + " -> " + rel.TargetID,
				Reason: err.Error(),
			})
			continue
		}
		report.Relationships.Succeeded++
	}

	s.log.Info("snapshot load finished",
		"models_written", report.Models.Succeeded,
		"datasets_written", report.Datasets.Succeeded,
		"relationships_written", report.Relationships.Succeeded,
		"relationships_skipped", len(report.Relationships.Failures),
	)
	return report, nil
}

// ensureSchema creates the per-label id uniqueness constraints. Best-effort:
// restricted users may lack schema privileges, so failures log and continue.
func (s *lineageStore) ensureSchema(ctx context.Context) {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	for _, stmt := range []string{
		`CREATE CONSTRAINT model_id_unique IF NOT EXISTS FOR (m:Model) REQUIRE m.id IS UNIQUE`,
		`CREATE CONSTRAINT dataset_id_unique IF NOT EXISTS FOR (d:Dataset) REQUIRE d.id IS UNIQUE`,
	} {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

// Clear wipes every node and edge. Only the explicit full-reload path calls
// this; it is never part of a routine load.
func (s *lineageStore) Clear(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n) DETACH DELETE n`, nil)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	if summary, ok := out.(neo4j.ResultSummary); ok {
		s.log.Warn("graph cleared", "nodes_deleted", summary.Counters().NodesDeleted())
	} else {
		s.log.Warn("graph cleared")
	}
	return nil
}

func (s *lineageStore) Statistics(ctx context.Context) (lineage.Statistics, error) {
	var stats lineage.Statistics
	if err := s.ready(); err != nil {
		return stats, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		st := lineage.Statistics{RelationshipTypes: map[lineage.RelationType]int64{}}
		var err error
		if st.Models, err = countQuery(ctx, tx, `MATCH (m:Model) RETURN count(m) AS count`); err != nil {
			return nil, err
		}
		if st.Datasets, err = countQuery(ctx, tx, `MATCH (d:Dataset) RETURN count(d) AS count`); err != nil {
			return nil, err
		}
		if st.Relationships, err = countQuery(ctx, tx, `MATCH ()-[r]->() RETURN count(r) AS count`); err != nil {
			return nil, err
		}

		res, err := tx.Run(ctx, `
MATCH ()-[r]->()
RETURN type(r) AS rel_type, count(r) AS count
ORDER BY count DESC
`, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			rawType, _ := rec.Get("rel_type")
			label, ok := rawType.(string)
			if !ok {
				continue
			}
			t, err := lineage.RelationTypeFromEdgeLabel(label)
			if err != nil {
				// Edge types outside the enum stay out of the histogram but
				// still count in the total.
				continue
			}
			n, _ := rec.Get("count")
			count, _ := n.(int64)
			st.RelationshipTypes[t] = count
		}
		return st, nil
	})
	if err != nil {
		return stats, fmt.Errorf("graph statistics: %w", err)
	}
	return out.(lineage.Statistics), nil
}

func countQuery(ctx context.Context, tx neo4j.ManagedTransaction, cypher string) (int64, error) {
	res, err := tx.Run(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := rec.Get("count")
	count, ok := n.(int64)
	if !ok {
		return 0, fmt.Errorf("count query returned %T", n)
	}
	return count, nil
}
