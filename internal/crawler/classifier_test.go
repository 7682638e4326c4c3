package crawler

import (
	"context"
	"fmt"
	"testing"

	"github.com/tz1211/datadetox/internal/domain/lineage"
	"github.com/tz1211/datadetox/internal/platform/hfhub"
	"github.com/tz1211/datadetox/internal/platform/logger"
)

type fakeSiblingLister struct {
	siblings hfhub.Siblings
	err      error
	calls    int
}

func (f *fakeSiblingLister) GetModelSiblings(_ context.Context, _ string) (hfhub.Siblings, error) {
	f.calls++
	return f.siblings, f.err
}

func TestClassifyPatternBeatsSiblingListing(t *testing.T) {
	lister := &fakeSiblingLister{
		siblings: hfhub.Siblings{"finetuned": {"base-model-4bit"}},
	}
	c := NewClassifier(lister, newTestLogger(t))

	model := lineage.ModelNode{ID: "base-model-4bit"}
	card := &hfhub.CardMetadata{BaseModel: "base-model"}

	cand, ok := c.Classify(context.Background(), model, card)
	if !ok {
		t.Fatalf("expected a classification")
	}
	if cand.Type != lineage.RelQuantizations {
		t.Fatalf("type: want=%q got=%q", lineage.RelQuantizations, cand.Type)
	}
	if cand.BaseModelID != "base-model" {
		t.Fatalf("base: want=%q got=%q", "base-model", cand.BaseModelID)
	}
	if cand.Strategy != "name_pattern" {
		t.Fatalf("strategy: want=%q got=%q", "name_pattern", cand.Strategy)
	}
}

func TestClassifyDefaultsToFinetuned(t *testing.T) {
	c := NewClassifier(&fakeSiblingLister{siblings: hfhub.Siblings{}}, newTestLogger(t))

	model := lineage.ModelNode{ID: "child/model", Author: "child"}
	card := &hfhub.CardMetadata{BaseModel: "parent/model"}

	cand, ok := c.Classify(context.Background(), model, card)
	if !ok {
		t.Fatalf("expected a classification")
	}
	if cand.Type != lineage.RelFinetuned {
		t.Fatalf("type: want=%q got=%q", lineage.RelFinetuned, cand.Type)
	}
	if cand.Strategy != "default_finetuned" {
		t.Fatalf("strategy: want=%q got=%q", "default_finetuned", cand.Strategy)
	}
}

func TestClassifyUsesSiblingListingWhenNoPattern(t *testing.T) {
	lister := &fakeSiblingLister{
		siblings: hfhub.Siblings{"adapters": {"org/derived"}},
	}
	c := NewClassifier(lister, newTestLogger(t))

	model := lineage.ModelNode{ID: "org/derived", Author: "org"}
	card := &hfhub.CardMetadata{BaseModel: "org/base"}

	cand, ok := c.Classify(context.Background(), model, card)
	if !ok {
		t.Fatalf("expected a classification")
	}
	if cand.Type != lineage.RelAdapters {
		t.Fatalf("type: want=%q got=%q", lineage.RelAdapters, cand.Type)
	}
	if cand.Strategy != "sibling_listing" {
		t.Fatalf("strategy: want=%q got=%q", "sibling_listing", cand.Strategy)
	}
	if lister.calls != 1 {
		t.Fatalf("sibling lookups: want=1 got=%d", lister.calls)
	}
}

func TestClassifyQualifiesBareBaseWithAuthor(t *testing.T) {
	c := NewClassifier(&fakeSiblingLister{}, newTestLogger(t))

	model := lineage.ModelNode{ID: "org/child", Author: "org"}
	card := &hfhub.CardMetadata{BaseModel: "base"}

	cand, ok := c.Classify(context.Background(), model, card)
	if !ok {
		t.Fatalf("expected a classification")
	}
	if cand.BaseModelID != "org/base" {
		t.Fatalf("qualified base: want=%q got=%q", "org/base", cand.BaseModelID)
	}
}

func TestClassifyNoBaseNoRelationship(t *testing.T) {
	c := NewClassifier(&fakeSiblingLister{}, newTestLogger(t))

	if _, ok := c.Classify(context.Background(), lineage.ModelNode{ID: "org/solo"}, nil); ok {
		t.Fatalf("nil card should classify nothing")
	}
	if _, ok := c.Classify(context.Background(), lineage.ModelNode{ID: "org/solo"}, &hfhub.CardMetadata{}); ok {
		t.Fatalf("empty base should classify nothing")
	}
}

func TestClassifySelfReferenceGuard(t *testing.T) {
	c := NewClassifier(&fakeSiblingLister{}, newTestLogger(t))

	model := lineage.ModelNode{ID: "org/self", Author: "org"}
	card := &hfhub.CardMetadata{BaseModel: "org/self"}
	if _, ok := c.Classify(context.Background(), model, card); ok {
		t.Fatalf("self-referencing base should classify nothing")
	}

	// Bare self-reference qualifies into the same id.
	card = &hfhub.CardMetadata{BaseModel: "self"}
	if _, ok := c.Classify(context.Background(), model, card); ok {
		t.Fatalf("qualified self-reference should classify nothing")
	}
}

func TestClassifySiblingLookupFailureFallsThrough(t *testing.T) {
	lister := &fakeSiblingLister{err: fmt.Errorf("listing unavailable")}
	c := NewClassifier(lister, newTestLogger(t))

	model := lineage.ModelNode{ID: "org/child", Author: "org"}
	card := &hfhub.CardMetadata{BaseModel: "org/parent"}

	cand, ok := c.Classify(context.Background(), model, card)
	if !ok {
		t.Fatalf("expected fallback classification")
	}
	if cand.Type != lineage.RelFinetuned || cand.Strategy != "default_finetuned" {
		t.Fatalf("fallback: got type=%q strategy=%q", cand.Type, cand.Strategy)
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}
