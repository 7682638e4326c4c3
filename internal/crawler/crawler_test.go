package crawler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/tz1211/datadetox/internal/domain/lineage"
	"github.com/tz1211/datadetox/internal/platform/hfhub"
)

type fakeHub struct {
	listModels     func(ctx context.Context, limit int) ([]hfhub.ModelListing, error)
	getModel       func(ctx context.Context, id string) (*lineage.ModelNode, error)
	getDataset     func(ctx context.Context, id string) (*lineage.DatasetNode, error)
	getModelCard   func(ctx context.Context, id string) (hfhub.CardMetadata, error)
	getSiblings    func(ctx context.Context, id string) (hfhub.Siblings, error)
	getDatasetPage func(ctx context.Context, id string) (string, error)
}

func notFoundErr(op string) error {
	return &hfhub.OperationError{
		Code:       hfhub.OperationErrorNotFound,
		Operation:  op,
		StatusCode: http.StatusNotFound,
	}
}

func (f *fakeHub) ListModels(ctx context.Context, limit int) ([]hfhub.ModelListing, error) {
	if f.listModels == nil {
		return nil, nil
	}
	return f.listModels(ctx, limit)
}

func (f *fakeHub) GetModel(ctx context.Context, id string) (*lineage.ModelNode, error) {
	if f.getModel == nil {
		return nil, notFoundErr("get_model")
	}
	return f.getModel(ctx, id)
}

func (f *fakeHub) GetDataset(ctx context.Context, id string) (*lineage.DatasetNode, error) {
	if f.getDataset == nil {
		return nil, notFoundErr("get_dataset")
	}
	return f.getDataset(ctx, id)
}

func (f *fakeHub) GetModelCard(ctx context.Context, id string) (hfhub.CardMetadata, error) {
	if f.getModelCard == nil {
		return hfhub.CardMetadata{}, notFoundErr("get_card")
	}
	return f.getModelCard(ctx, id)
}

func (f *fakeHub) GetModelSiblings(ctx context.Context, id string) (hfhub.Siblings, error) {
	if f.getSiblings == nil {
		return hfhub.Siblings{}, nil
	}
	return f.getSiblings(ctx, id)
}

func (f *fakeHub) GetDatasetPage(ctx context.Context, id string) (string, error) {
	if f.getDatasetPage == nil {
		return "", notFoundErr("get_dataset_page")
	}
	return f.getDatasetPage(ctx, id)
}

func newTestCrawler(t *testing.T, hub *fakeHub) *Crawler {
	t.Helper()
	log := newTestLogger(t)
	return New(hub, NewClassifier(hub, log), Config{DelayMS: 0, Workers: 2}, log)
}

func TestCrawlModelsDiscoversRelationshipsAndStubs(t *testing.T) {
	hub := &fakeHub{
		listModels: func(_ context.Context, limit int) ([]hfhub.ModelListing, error) {
			if limit != 5 {
				t.Fatalf("limit passed through: want=5 got=%d", limit)
			}
			return []hfhub.ModelListing{
				{
					Node: lineage.ModelNode{ID: "org/child", Author: "org", Downloads: 10},
					Card: &hfhub.CardMetadata{BaseModel: "org/parent"},
				},
				{
					Node: lineage.ModelNode{
						ID:        "org/tagger",
						Author:    "org",
						Downloads: 5,
						Tags:      []string{"nlp", "dataset:squad", "dataset:allenai/c4"},
					},
				},
			}, nil
		},
	}
	c := newTestCrawler(t, hub)

	out, err := c.CrawlModels(context.Background(), 5)
	if err != nil {
		t.Fatalf("CrawlModels: %v", err)
	}
	if len(out.Models) != 2 {
		t.Fatalf("models: want=2 got=%d", len(out.Models))
	}
	if len(out.Relationships) != 3 {
		t.Fatalf("relationships: want=3 got=%d", len(out.Relationships))
	}

	rel := out.Relationships[0]
	if rel.SourceID != "org/child" || rel.TargetID != "org/parent" || rel.Type != lineage.RelFinetuned {
		t.Fatalf("model relationship: got=%+v", rel)
	}
	if rel.SourceKind != lineage.KindModel || rel.TargetKind != lineage.KindModel {
		t.Fatalf("model relationship kinds: got=%+v", rel)
	}
	if rel.Metadata["method"] != "default_finetuned" {
		t.Fatalf("relationship method metadata: got=%v", rel.Metadata)
	}

	trained := out.Relationships[1]
	if trained.SourceID != "org/tagger" || trained.TargetID != "squad" || trained.Type != lineage.RelTrainedOn {
		t.Fatalf("trained_on relationship: got=%+v", trained)
	}
	if trained.TargetKind != lineage.KindDataset {
		t.Fatalf("trained_on target kind: got=%q", trained.TargetKind)
	}

	if len(out.Datasets) != 2 {
		t.Fatalf("dataset stubs: want=2 got=%d", len(out.Datasets))
	}
	if out.Datasets[0].ID != "squad" || out.Datasets[0].Author != "rajpurkar" {
		t.Fatalf("squad stub: got=%+v", out.Datasets[0])
	}
	if out.Datasets[1].ID != "allenai/c4" || out.Datasets[1].Author != "allenai" {
		t.Fatalf("c4 stub: got=%+v", out.Datasets[1])
	}
}

func TestCrawlModelsListingFailureAborts(t *testing.T) {
	hub := &fakeHub{
		listModels: func(_ context.Context, _ int) ([]hfhub.ModelListing, error) {
			return nil, fmt.Errorf("listing down")
		},
	}
	c := newTestCrawler(t, hub)

	if _, err := c.CrawlModels(context.Background(), 3); err == nil {
		t.Fatalf("expected listing failure to abort the crawl")
	}
}

func TestCrawlModelsCardFailureIsolated(t *testing.T) {
	hub := &fakeHub{
		listModels: func(_ context.Context, _ int) ([]hfhub.ModelListing, error) {
			return []hfhub.ModelListing{
				{Node: lineage.ModelNode{ID: "org/flaky", Author: "org"}},
			}, nil
		},
		getModelCard: func(_ context.Context, _ string) (hfhub.CardMetadata, error) {
			return hfhub.CardMetadata{}, fmt.Errorf("card service down")
		},
	}
	c := newTestCrawler(t, hub)

	out, err := c.CrawlModels(context.Background(), 1)
	if err != nil {
		t.Fatalf("CrawlModels: %v", err)
	}
	if len(out.Models) != 1 {
		t.Fatalf("model should survive card failure: got=%d", len(out.Models))
	}
	if len(out.Relationships) != 0 {
		t.Fatalf("no relationships expected: got=%v", out.Relationships)
	}
}

func TestCrawlModelSingle(t *testing.T) {
	hub := &fakeHub{
		getModel: func(_ context.Context, id string) (*lineage.ModelNode, error) {
			if id != "org/solo" {
				t.Fatalf("model id: want=%q got=%q", "org/solo", id)
			}
			return &lineage.ModelNode{
				ID:     "org/solo",
				Author: "org",
				Tags:   []string{"dataset:squad"},
			}, nil
		},
		getModelCard: func(_ context.Context, _ string) (hfhub.CardMetadata, error) {
			return hfhub.CardMetadata{BaseModel: "org/base"}, nil
		},
	}
	c := newTestCrawler(t, hub)

	out, err := c.CrawlModel(context.Background(), "org/solo")
	if err != nil {
		t.Fatalf("CrawlModel: %v", err)
	}
	if len(out.Models) != 1 || out.Models[0].ID != "org/solo" {
		t.Fatalf("models: got=%+v", out.Models)
	}
	if len(out.Relationships) != 2 {
		t.Fatalf("relationships: want=2 got=%d", len(out.Relationships))
	}
	if len(out.Datasets) != 1 || out.Datasets[0].ID != "squad" {
		t.Fatalf("dataset stub: got=%+v", out.Datasets)
	}
}

func TestCrawlDatasetsEnrichesAndScansPages(t *testing.T) {
	page := `<html><body>
<h3>Models trained or fine-tuned on allenai/c4</h3>
<div><a href="/models/org/c4-model">c4-model</a></div>
</body></html>`

	hub := &fakeHub{
		getDataset: func(_ context.Context, id string) (*lineage.DatasetNode, error) {
			return &lineage.DatasetNode{ID: id, Author: "allenai", Downloads: 77, Tags: []string{"language:en"}}, nil
		},
		getDatasetPage: func(_ context.Context, id string) (string, error) {
			return page, nil
		},
	}
	c := newTestCrawler(t, hub)

	out, err := c.CrawlDatasets(context.Background(), []string{"allenai/c4", "squad", "allenai/c4"}, 0)
	if err != nil {
		t.Fatalf("CrawlDatasets: %v", err)
	}
	if len(out.Datasets) != 1 {
		t.Fatalf("datasets: want=1 got=%d (unqualified and duplicate ids must be skipped)", len(out.Datasets))
	}
	if out.Datasets[0].Downloads != 77 {
		t.Fatalf("enriched downloads: got=%+v", out.Datasets[0])
	}
	if len(out.Relationships) != 1 {
		t.Fatalf("relationships: want=1 got=%d", len(out.Relationships))
	}
	rel := out.Relationships[0]
	if rel.SourceID != "org/c4-model" || rel.TargetID != "allenai/c4" || rel.Type != lineage.RelTrainedOn {
		t.Fatalf("page relationship: got=%+v", rel)
	}
}

func TestCrawlDatasetsWorkerFailureIsolated(t *testing.T) {
	hub := &fakeHub{
		getDataset: func(_ context.Context, id string) (*lineage.DatasetNode, error) {
			if id == "bad/dataset" {
				return nil, fmt.Errorf("boom")
			}
			return &lineage.DatasetNode{ID: id, Tags: []string{}}, nil
		},
		getDatasetPage: func(_ context.Context, _ string) (string, error) {
			return "", notFoundErr("get_dataset_page")
		},
	}
	c := newTestCrawler(t, hub)

	out, err := c.CrawlDatasets(context.Background(), []string{"bad/dataset", "good/dataset"}, 0)
	if err != nil {
		t.Fatalf("CrawlDatasets: %v", err)
	}
	if len(out.Datasets) != 1 || out.Datasets[0].ID != "good/dataset" {
		t.Fatalf("surviving datasets: got=%+v", out.Datasets)
	}
}

func TestCrawlDatasetsLimitAndVisitedCache(t *testing.T) {
	var fetched []string
	hub := &fakeHub{
		getDataset: func(_ context.Context, id string) (*lineage.DatasetNode, error) {
			fetched = append(fetched, id)
			return &lineage.DatasetNode{ID: id, Tags: []string{}}, nil
		},
		getDatasetPage: func(_ context.Context, _ string) (string, error) {
			return "", notFoundErr("get_dataset_page")
		},
	}
	c := New(hub, NewClassifier(hub, newTestLogger(t)), Config{DelayMS: 0, Workers: 1}, newTestLogger(t))

	out, err := c.CrawlDatasets(context.Background(), []string{"a/one", "b/two", "c/three"}, 2)
	if err != nil {
		t.Fatalf("CrawlDatasets: %v", err)
	}
	if len(out.Datasets) != 2 {
		t.Fatalf("limited datasets: want=2 got=%d", len(out.Datasets))
	}

	// Second pass with an already-visited id fetches nothing new for it.
	out, err = c.CrawlDatasets(context.Background(), []string{"a/one", "d/four"}, 0)
	if err != nil {
		t.Fatalf("CrawlDatasets second pass: %v", err)
	}
	if len(out.Datasets) != 1 || out.Datasets[0].ID != "d/four" {
		t.Fatalf("visited cache: got=%+v", out.Datasets)
	}
	for _, id := range fetched {
		if id == "c/three" {
			t.Fatalf("limit exceeded: %q should not have been fetched", id)
		}
	}
}

func TestConfigWorkerClamp(t *testing.T) {
	hub := &fakeHub{}
	log := newTestLogger(t)

	c := New(hub, NewClassifier(hub, log), Config{Workers: 0}, log)
	if c.workers != 1 {
		t.Fatalf("workers floor: want=1 got=%d", c.workers)
	}
	c = New(hub, NewClassifier(hub, log), Config{Workers: 99}, log)
	if c.workers != 16 {
		t.Fatalf("workers ceiling: want=16 got=%d", c.workers)
	}
}
