package crawler

import (
	"context"
	"strings"

	"github.com/tz1211/datadetox/internal/domain/lineage"
	"github.com/tz1211/datadetox/internal/platform/hfhub"
	"github.com/tz1211/datadetox/internal/platform/logger"
)

// Candidate is a classified derivation: the model the classified model
// derives from, the relationship type, and the strategy that decided it.
type Candidate struct {
	BaseModelID string
	Type        lineage.RelationType
	Strategy    string
}

// SiblingLister is the one hub call the classifier needs on its own; the
// card comes in as input so pattern classification stays offline.
type SiblingLister interface {
	GetModelSiblings(ctx context.Context, modelID string) (hfhub.Siblings, error)
}

// Classifier resolves a model's base and decides the relationship type by
// running an ordered strategy list; the first strategy with an answer wins.
type Classifier struct {
	siblings   SiblingLister
	log        *logger.Logger
	strategies []strategy
}

type strategy struct {
	name     string
	classify func(ctx context.Context, modelID, baseID string) (lineage.RelationType, bool)
}

func NewClassifier(siblings SiblingLister, baseLog *logger.Logger) *Classifier {
	c := &Classifier{
		siblings: siblings,
	}
	if baseLog != nil {
		c.log = baseLog.With("component", "Classifier")
	}
	// Name patterns run ahead of the sibling listing: a "-4bit" suffix is a
	// stronger signal than the listing's own bucketing, which files most
	// derivatives under finetuned.
	c.strategies = []strategy{
		{name: "name_pattern", classify: patternStrategy},
		{name: "sibling_listing", classify: c.siblingStrategy},
		{name: "default_finetuned", classify: defaultStrategy},
	}
	return c
}

// Classify decides whether model derives from another model. card may be
// nil when no card metadata exists; without a base_model there is no
// relationship, which is a normal outcome rather than an error.
func (c *Classifier) Classify(ctx context.Context, model lineage.ModelNode, card *hfhub.CardMetadata) (*Candidate, bool) {
	base := baseModelID(model, card)
	if base == "" || base == model.ID {
		return nil, false
	}
	for _, s := range c.strategies {
		if relType, ok := s.classify(ctx, model.ID, base); ok {
			return &Candidate{
				BaseModelID: base,
				Type:        relType,
				Strategy:    s.name,
			}, true
		}
	}
	return nil, false
}

// baseModelID reads the card's base model and qualifies unprefixed ids with
// the model's own author (cards routinely cite in-org bases by bare name).
func baseModelID(model lineage.ModelNode, card *hfhub.CardMetadata) string {
	if card == nil {
		return ""
	}
	base := strings.TrimSpace(card.BaseModel)
	if base == "" {
		return ""
	}
	if !strings.Contains(base, "/") && model.Author != "" {
		base = model.Author + "/" + base
	}
	return base
}

var (
	quantPatterns   = []string{"-8bit", "-4bit", "-gguf", "-gptq", "-awq", "-fp8", "-fp4", "-quantized"}
	adapterPatterns = []string{"-adapter", "-lora", "-peft", "-adapterhub"}
	mergePatterns   = []string{"-merge", "-merged", "-soup"}
)

// patternStrategy classifies from id markers alone, in fixed order
// quantization, adapter, merge.
func patternStrategy(_ context.Context, modelID, _ string) (lineage.RelationType, bool) {
	name := strings.ToLower(modelID)
	if containsAny(name, quantPatterns) {
		return lineage.RelQuantizations, true
	}
	if containsAny(name, adapterPatterns) {
		return lineage.RelAdapters, true
	}
	if containsAny(name, mergePatterns) {
		return lineage.RelMerges, true
	}
	return "", false
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// siblingStrategy asks the registry how the base model's derivative listing
// buckets this model. Lookup failures fall through to the next strategy.
func (c *Classifier) siblingStrategy(ctx context.Context, modelID, baseID string) (lineage.RelationType, bool) {
	if c.siblings == nil {
		return "", false
	}
	sibs, err := c.siblings.GetModelSiblings(ctx, baseID)
	if err != nil {
		if c.log != nil {
			c.log.Debug("sibling listing lookup failed", "base_model", baseID, "error", err)
		}
		return "", false
	}
	category, ok := sibs.Category(modelID)
	if !ok {
		return "", false
	}
	relType, err := lineage.ParseRelationType(category)
	if err != nil {
		return "", false
	}
	return relType, true
}

// defaultStrategy: a base that exists and differs from the model means a
// fine-tune unless something more specific said otherwise.
func defaultStrategy(_ context.Context, _, baseID string) (lineage.RelationType, bool) {
	if baseID == "" {
		return "", false
	}
	return lineage.RelFinetuned, true
}
