package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tz1211/datadetox/internal/domain/lineage"
)

// maxRelated caps how many related entities a lineage query returns.
const maxRelated = 10

// Neighbor queries share one shape: the edge type, the neighbor's labels and
// its properties, ordered by popularity with the id as a stable tie-break.
// A missing downloads property sorts as zero, so stubs land last.
const (
	modelUpstreamCypher = `
MATCH (root:Model {id: $id})-[e]->(n)
RETURN type(e) AS rel_type, labels(n) AS labels, properties(n) AS props, properties(e) AS rel_props
ORDER BY coalesce(n.downloads, 0) DESC, n.id ASC
LIMIT $limit
`

	modelDownstreamCypher = `
MATCH (n:Model)-[e]->(root:Model {id: $id})
RETURN type(e) AS rel_type, labels(n) AS labels, properties(n) AS props, properties(e) AS rel_props
ORDER BY coalesce(n.downloads, 0) DESC, n.id ASC
LIMIT $limit
`

	datasetDownstreamCypher = `
MATCH (n:Model)-[e:TRAINED_ON]->(root:Dataset {id: $id})
RETURN type(e) AS rel_type, labels(n) AS labels, properties(n) AS props, properties(e) AS rel_props
ORDER BY coalesce(n.downloads, 0) DESC, n.id ASC
LIMIT $limit
`

	datasetUpstreamCypher = `
MATCH (root:Dataset {id: $id})-[e]->(n)
RETURN type(e) AS rel_type, labels(n) AS labels, properties(n) AS props, properties(e) AS rel_props
ORDER BY coalesce(n.downloads, 0) DESC, n.id ASC
LIMIT $limit
`
)

// neighborRow is one selected neighbor plus the edge that reached it. The
// caller knows the traversal direction, so only type and metadata travel
// with the row.
type neighborRow struct {
	relType  lineage.RelationType
	entity   lineage.Entity
	metadata map[string]string
}

// Lineage returns the bounded one-hop neighborhood of an entity. The id is
// resolved as a Model first, then as a Dataset; an id matching neither yields
// an empty result, not an error. Model roots spend a shared budget of
// maxRelated slots, upstream first; dataset roots cap their consumers and
// their own outgoing edges independently.
func (s *lineageStore) Lineage(ctx context.Context, entityID string) (lineage.LineageResult, error) {
	empty := lineage.EmptyLineageResult()
	empty.RootID = entityID
	if err := s.ready(); err != nil {
		return empty, err
	}
	if strings.TrimSpace(entityID) == "" {
		return empty, nil
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
		root, ok, err := s.resolveRoot(ctx, tx, entityID)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.log.Debug("lineage root not found", "entity_id", entityID)
			res := lineage.EmptyLineageResult()
			res.RootID = entityID
			return res, nil
		}
		if root.Kind == lineage.KindModel {
			return s.modelNeighborhood(ctx, tx, root)
		}
		return s.datasetNeighborhood(ctx, tx, root)
	})
	if err != nil {
		return empty, fmt.Errorf("lineage %q: %w", entityID, err)
	}
	return out.(lineage.LineageResult), nil
}

// resolveRoot probes the Model label first, then Dataset. The order matters:
// a model and a dataset may share an id, and models win the tie.
func (s *lineageStore) resolveRoot(ctx context.Context, tx neo4j.ManagedTransaction, id string) (lineage.Entity, bool, error) {
	probes := []struct {
		cypher string
		kind   lineage.EntityKind
	}{
		{`MATCH (n:Model {id: $id}) RETURN properties(n) AS props LIMIT 1`, lineage.KindModel},
		{`MATCH (n:Dataset {id: $id}) RETURN properties(n) AS props LIMIT 1`, lineage.KindDataset},
	}
	for _, probe := range probes {
		res, err := tx.Run(ctx, probe.cypher, map[string]any{"id": id})
		if err != nil {
			return lineage.Entity{}, false, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return lineage.Entity{}, false, err
		}
		if len(records) == 0 {
			continue
		}
		props, _ := records[0].Get("props")
		entity, err := entityFromProps(probe.kind, props)
		if err != nil {
			return lineage.Entity{}, false, fmt.Errorf("root record: %w", err)
		}
		return entity, true, nil
	}
	return lineage.Entity{}, false, nil
}

// downstreamBudget is the slot count left for derived models once a model
// root's upstream neighbors have taken theirs from the shared maxRelated.
func downstreamBudget(upstream int) int {
	return maxRelated - upstream
}

func (s *lineageStore) modelNeighborhood(ctx context.Context, tx neo4j.ManagedTransaction, root lineage.Entity) (lineage.LineageResult, error) {
	upstream, err := s.fetchNeighbors(ctx, tx, modelUpstreamCypher, root.ID(), maxRelated)
	if err != nil {
		return lineage.LineageResult{}, err
	}

	// Upstream holds priority: only leftover budget goes to derived models,
	// and a full upstream set skips the downstream traversal altogether.
	var downstream []neighborRow
	if rest := downstreamBudget(len(upstream)); rest > 0 {
		if downstream, err = s.fetchNeighbors(ctx, tx, modelDownstreamCypher, root.ID(), rest); err != nil {
			return lineage.LineageResult{}, err
		}
	}
	return assembleResult(root, upstream, downstream), nil
}

func (s *lineageStore) datasetNeighborhood(ctx context.Context, tx neo4j.ManagedTransaction, root lineage.Entity) (lineage.LineageResult, error) {
	// Consuming models are the interesting neighbors of a dataset, so they
	// take the primary cap rather than sharing it with upstream edges.
	downstream, err := s.fetchNeighbors(ctx, tx, datasetDownstreamCypher, root.ID(), maxRelated)
	if err != nil {
		return lineage.LineageResult{}, err
	}
	upstream, err := s.fetchNeighbors(ctx, tx, datasetUpstreamCypher, root.ID(), maxRelated)
	if err != nil {
		return lineage.LineageResult{}, err
	}
	return assembleResult(root, upstream, downstream), nil
}

// fetchNeighbors runs one neighbor query and parses its rows. A row that
// fails to parse is dropped with a warning rather than failing the query.
func (s *lineageStore) fetchNeighbors(ctx context.Context, tx neo4j.ManagedTransaction, cypher, rootID string, limit int) ([]neighborRow, error) {
	if limit <= 0 {
		return nil, nil
	}
	res, err := tx.Run(ctx, cypher, map[string]any{"id": rootID, "limit": limit})
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]neighborRow, 0, len(records))
	for _, rec := range records {
		row, err := neighborFromRecord(rec)
		if err != nil {
			s.log.Warn("dropping unparseable neighbor", "root", rootID, "error", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func neighborFromRecord(rec *neo4j.Record) (neighborRow, error) {
	rawType, _ := rec.Get("rel_type")
	label, _ := rawType.(string)
	relType, err := lineage.RelationTypeFromEdgeLabel(label)
	if err != nil {
		return neighborRow{}, err
	}

	rawLabels, _ := rec.Get("labels")
	kind, err := kindFromLabels(rawLabels)
	if err != nil {
		return neighborRow{}, err
	}

	rawProps, _ := rec.Get("props")
	entity, err := entityFromProps(kind, rawProps)
	if err != nil {
		return neighborRow{}, err
	}

	rawRelProps, _ := rec.Get("rel_props")
	return neighborRow{relType: relType, entity: entity, metadata: relMetadata(rawRelProps)}, nil
}

func kindFromLabels(raw any) (lineage.EntityKind, error) {
	labels, _ := raw.([]any)
	for _, l := range labels {
		switch l {
		case "Model":
			return lineage.KindModel, nil
		case "Dataset":
			return lineage.KindDataset, nil
		}
	}
	return "", fmt.Errorf("node labels %v name no known kind", raw)
}

// entityFromProps rebuilds a domain entity from a stored property map.
// Individual properties with an unexpected type fall back to their zero
// value; only a missing id rejects the record.
func entityFromProps(kind lineage.EntityKind, raw any) (lineage.Entity, error) {
	props, ok := raw.(map[string]any)
	if !ok {
		return lineage.Entity{}, fmt.Errorf("node properties have type %T", raw)
	}
	id := stringProp(props, "id")
	if id == "" {
		return lineage.Entity{}, fmt.Errorf("node record missing id")
	}
	if kind == lineage.KindDataset {
		return lineage.DatasetEntity(lineage.DatasetNode{
			ID:        id,
			Author:    stringProp(props, "author"),
			Downloads: intProp(props, "downloads"),
			Tags:      stringsProp(props, "tags"),
		}), nil
	}
	return lineage.ModelEntity(lineage.ModelNode{
		ID:          id,
		Author:      stringProp(props, "author"),
		SHA:         stringProp(props, "sha"),
		Downloads:   intProp(props, "downloads"),
		Likes:       intProp(props, "likes"),
		Tags:        stringsProp(props, "tags"),
		Library:     stringProp(props, "library"),
		PipelineTag: stringProp(props, "pipeline_tag"),
		Private:     boolProp(props, "private"),
		URL:         stringProp(props, "url"),
		CreatedAt:   stringProp(props, "created_at"),
		UpdatedAt:   stringProp(props, "updated_at"),
	}), nil
}

// relMetadata keeps the string-valued edge properties, minus the store's own
// synced_at bookkeeping. Returns nil when nothing is left.
func relMetadata(raw any) map[string]string {
	props, _ := raw.(map[string]any)
	var md map[string]string
	for k, v := range props {
		if k == "synced_at" {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if md == nil {
			md = make(map[string]string)
		}
		md[k] = s
	}
	return md
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func intProp(props map[string]any, key string) int64 {
	n, _ := props[key].(int64)
	return n
}

func boolProp(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}

func stringsProp(props map[string]any, key string) []string {
	raw, _ := props[key].([]any)
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// assembleResult folds the root and its selected neighbors into the response
// shape. Nodes deduplicate by (kind, id); upstream rows become edges leaving
// the root, downstream rows edges arriving at it.
func assembleResult(root lineage.Entity, upstream, downstream []neighborRow) lineage.LineageResult {
	out := lineage.LineageResult{
		RootID:        root.ID(),
		Root:          &root,
		Nodes:         make([]lineage.Entity, 0, 1+len(upstream)+len(downstream)),
		Relationships: make([]lineage.Relationship, 0, len(upstream)+len(downstream)),
	}
	seen := map[string]bool{root.Key(): true}
	out.Nodes = append(out.Nodes, root)

	for _, row := range upstream {
		if !seen[row.entity.Key()] {
			seen[row.entity.Key()] = true
			out.Nodes = append(out.Nodes, row.entity)
		}
		out.Relationships = append(out.Relationships, lineage.Relationship{
			SourceID:   root.ID(),
			TargetID:   row.entity.ID(),
			Type:       row.relType,
			SourceKind: root.Kind,
			TargetKind: row.entity.Kind,
			Metadata:   row.metadata,
		})
	}
	for _, row := range downstream {
		if !seen[row.entity.Key()] {
			seen[row.entity.Key()] = true
			out.Nodes = append(out.Nodes, row.entity)
		}
		out.Relationships = append(out.Relationships, lineage.Relationship{
			SourceID:   row.entity.ID(),
			TargetID:   root.ID(),
			Type:       row.relType,
			SourceKind: row.entity.Kind,
			TargetKind: root.Kind,
			Metadata:   row.metadata,
		})
	}
	return out
}
