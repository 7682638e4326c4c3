package lineage

import "strings"

// EntityKind tags a graph node as a model or a dataset. A model and a
// dataset may share the same id string; the pair (kind, id) is the identity.
type EntityKind string

const (
	KindModel   EntityKind = "model"
	KindDataset EntityKind = "dataset"
)

func (k EntityKind) Valid() bool {
	return k == KindModel || k == KindDataset
}

// ModelNode is one scraped model. ID follows the registry's "author/name"
// convention. Timestamps stay as the RFC3339 strings the registry reports;
// they round-trip through snapshots and the store untouched.
type ModelNode struct {
	ID          string   `json:"id"`
	Author      string   `json:"author,omitempty"`
	SHA         string   `json:"sha,omitempty"`
	Downloads   int64    `json:"downloads"`
	Likes       int64    `json:"likes"`
	Tags        []string `json:"tags,omitempty"`
	Library     string   `json:"library,omitempty"`
	PipelineTag string   `json:"pipeline_tag,omitempty"`
	Private     bool     `json:"private"`
	URL         string   `json:"url,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

// DatasetNode is one scraped dataset, or a stub synthesized from a
// relationship reference before the dataset itself was crawled.
type DatasetNode struct {
	ID        string   `json:"id"`
	Author    string   `json:"author,omitempty"`
	Downloads int64    `json:"downloads"`
	Tags      []string `json:"tags"`
}

// Stub reports whether the node carries identity only, i.e. nothing the
// registry would have filled in. The crawler uses this to decide which
// datasets still need enrichment.
func (d DatasetNode) Stub() bool {
	return d.Downloads == 0 && len(d.Tags) == 0
}

// AuthorFromID infers an author from an "author/name" id. Returns "" when
// the id has no separator (unqualified ids stay unattributed).
func AuthorFromID(id string) string {
	if i := strings.IndexByte(id, '/'); i > 0 {
		return id[:i]
	}
	return ""
}

// knownDatasetAuthors maps well-known bare dataset ids to the orgs that
// publish them on the registry. Model cards routinely cite these without
// the author prefix.
var knownDatasetAuthors = map[string]string{
	"squad":       "rajpurkar",
	"squad_v2":    "rajpurkar",
	"glue":        "nyu-mll",
	"openwebtext": "Skylion007",
	"c4":          "allenai",
	"pile":        "EleutherAI",
	"redpajama":   "togethercomputer",
	"commonvoice": "mozilla-foundation",
	"laion":       "laion",
	"openimages":  "google",
}

// StubDataset synthesizes a placeholder node for a dataset that is referenced
// by a relationship but was not itself crawled. Tags is non-nil so stubs and
// crawled nodes serialize identically.
func StubDataset(id string) DatasetNode {
	author := AuthorFromID(id)
	if author == "" {
		author = knownDatasetAuthors[strings.ToLower(id)]
	}
	return DatasetNode{ID: id, Author: author, Tags: []string{}}
}

// Entity is the tagged union over {Model, Dataset}. Exactly one of the two
// pointers is set, matching Kind; accessors switch on the tag instead of
// probing field presence.
type Entity struct {
	Kind    EntityKind   `json:"kind"`
	Model   *ModelNode   `json:"model,omitempty"`
	Dataset *DatasetNode `json:"dataset,omitempty"`
}

func ModelEntity(m ModelNode) Entity {
	return Entity{Kind: KindModel, Model: &m}
}

func DatasetEntity(d DatasetNode) Entity {
	return Entity{Kind: KindDataset, Dataset: &d}
}

// ID returns the canonical id of whichever variant is populated.
func (e Entity) ID() string {
	switch e.Kind {
	case KindModel:
		if e.Model != nil {
			return e.Model.ID
		}
	case KindDataset:
		if e.Dataset != nil {
			return e.Dataset.ID
		}
	}
	return ""
}

// Downloads returns the popularity signal for ordering; missing counts as 0.
func (e Entity) Downloads() int64 {
	switch e.Kind {
	case KindModel:
		if e.Model != nil {
			return e.Model.Downloads
		}
	case KindDataset:
		if e.Dataset != nil {
			return e.Dataset.Downloads
		}
	}
	return 0
}

// Key is the deduplication identity (kind, id).
func (e Entity) Key() string {
	return string(e.Kind) + ":" + e.ID()
}
