package lineage

import (
	"fmt"
	"strings"
)

// RelationType is one of the six relationship labels the store accepts.
// Derivation edges point from the derived entity to what it derives from;
// trained_on points from model to dataset.
type RelationType string

const (
	RelBasedOn       RelationType = "based_on"
	RelFinetuned     RelationType = "finetuned"
	RelAdapters      RelationType = "adapters"
	RelMerges        RelationType = "merges"
	RelQuantizations RelationType = "quantizations"
	RelTrainedOn     RelationType = "trained_on"
)

// RelationTypes lists every accepted type, in a fixed order used for
// statistics histograms.
var RelationTypes = []RelationType{
	RelBasedOn,
	RelFinetuned,
	RelAdapters,
	RelMerges,
	RelQuantizations,
	RelTrainedOn,
}

func (t RelationType) Valid() bool {
	switch t {
	case RelBasedOn, RelFinetuned, RelAdapters, RelMerges, RelQuantizations, RelTrainedOn:
		return true
	}
	return false
}

// EdgeLabel is the uppercase label the graph store writes (FINETUNED,
// TRAINED_ON, ...).
func (t RelationType) EdgeLabel() string {
	return strings.ToUpper(string(t))
}

// ParseRelationType rejects anything outside the six-value enum; free-text
// types never reach the store.
func ParseRelationType(raw string) (RelationType, error) {
	t := RelationType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown relationship type %q", raw)
	}
	return t, nil
}

// RelationTypeFromEdgeLabel maps a stored edge label back to its enum value.
func RelationTypeFromEdgeLabel(label string) (RelationType, error) {
	return ParseRelationType(strings.ToLower(label))
}

// Relationship is a directed edge between two nodes identified by
// (kind, id) pairs.
type Relationship struct {
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	Type       RelationType      `json:"relationship_type"`
	SourceKind EntityKind        `json:"source_kind"`
	TargetKind EntityKind        `json:"target_kind"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Validate checks the shape the builder and store require.
func (r Relationship) Validate() error {
	if strings.TrimSpace(r.SourceID) == "" {
		return fmt.Errorf("relationship missing source id")
	}
	if strings.TrimSpace(r.TargetID) == "" {
		return fmt.Errorf("relationship missing target id")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("unknown relationship type %q", string(r.Type))
	}
	if !r.SourceKind.Valid() {
		return fmt.Errorf("unknown source kind %q", string(r.SourceKind))
	}
	if !r.TargetKind.Valid() {
		return fmt.Errorf("unknown target kind %q", string(r.TargetKind))
	}
	return nil
}
