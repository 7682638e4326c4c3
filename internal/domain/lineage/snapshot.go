package lineage

// GraphSnapshot is one builder run's output: ordered, typed, with every
// dataset referenced by a relationship present at least as a stub. It is
// persisted incrementally through the store, never as a unit.
type GraphSnapshot struct {
	Models        []ModelNode    `json:"models"`
	Datasets      []DatasetNode  `json:"datasets"`
	Relationships []Relationship `json:"relationships"`
}

func (s GraphSnapshot) Counts() (models, datasets, relationships int) {
	return len(s.Models), len(s.Datasets), len(s.Relationships)
}

// Statistics summarizes the store contents.
type Statistics struct {
	Models            int64                  `json:"models"`
	Datasets          int64                  `json:"datasets"`
	Relationships     int64                  `json:"relationships"`
	RelationshipTypes map[RelationType]int64 `json:"relationship_types"`
}

// LineageResult is the bounded one-hop neighborhood around a root entity.
// RootID echoes the queried id so callers can tell the root apart from
// same-kind neighbors. Root is nil when the id resolved to nothing, which
// is a normal outcome rather than an error.
type LineageResult struct {
	RootID        string         `json:"root_id,omitempty"`
	Root          *Entity        `json:"root,omitempty"`
	Nodes         []Entity       `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

// Empty reports whether the query resolved no root.
func (r LineageResult) Empty() bool {
	return r.Root == nil
}

// EmptyLineageResult is the canonical unknown-id result: no root, empty
// (non-nil) node and relationship lists.
func EmptyLineageResult() LineageResult {
	return LineageResult{
		Nodes:         []Entity{},
		Relationships: []Relationship{},
	}
}
