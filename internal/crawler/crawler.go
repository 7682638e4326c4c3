package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tz1211/datadetox/internal/domain/lineage"
	"github.com/tz1211/datadetox/internal/pkg/httpx"
	"github.com/tz1211/datadetox/internal/platform/envutil"
	"github.com/tz1211/datadetox/internal/platform/hfhub"
	"github.com/tz1211/datadetox/internal/platform/logger"
)

const datasetTagPrefix = "dataset:"

// Hub is the slice of the registry client the crawler consumes.
type Hub interface {
	ListModels(ctx context.Context, limit int) ([]hfhub.ModelListing, error)
	GetModel(ctx context.Context, modelID string) (*lineage.ModelNode, error)
	GetDataset(ctx context.Context, datasetID string) (*lineage.DatasetNode, error)
	GetModelCard(ctx context.Context, modelID string) (hfhub.CardMetadata, error)
	GetModelSiblings(ctx context.Context, modelID string) (hfhub.Siblings, error)
	GetDatasetPage(ctx context.Context, datasetID string) (string, error)
}

type Config struct {
	// DelayMS is the fixed pause between registry requests; the crawl
	// self-throttles instead of reacting to 429s.
	DelayMS int
	// Workers bounds the dataset enrichment pool.
	Workers int
}

func ConfigFromEnv() Config {
	return Config{
		DelayMS: envutil.Int("CRAWL_DELAY_MS", 100),
		Workers: envutil.Int("CRAWL_WORKERS", 6),
	}
}

// ModelCrawl is one main-pass result: every model that survived extraction,
// dataset stubs referenced by tags, and all discovered relationships.
type ModelCrawl struct {
	Models        []lineage.ModelNode
	Datasets      []lineage.DatasetNode
	Relationships []lineage.Relationship
}

// DatasetCrawl is one enrichment-pass result.
type DatasetCrawl struct {
	Datasets      []lineage.DatasetNode
	Relationships []lineage.Relationship
}

type Crawler struct {
	hub        Hub
	classifier *Classifier
	log        *logger.Logger
	delay      time.Duration
	workers    int

	mu      sync.Mutex
	visited map[string]bool
}

func New(hub Hub, classifier *Classifier, cfg Config, baseLog *logger.Logger) *Crawler {
	delay := cfg.DelayMS
	if delay < 0 {
		delay = 0
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > 16 {
		workers = 16
	}
	return &Crawler{
		hub:        hub,
		classifier: classifier,
		log:        baseLog.With("service", "Crawler"),
		delay:      time.Duration(delay) * time.Millisecond,
		workers:    workers,
		visited:    map[string]bool{},
	}
}

// CrawlModels walks the registry's most-downloaded models. A listing
// failure aborts the crawl; anything going wrong for a single model is
// logged and skipped so one broken entity cannot sink the run.
func (c *Crawler) CrawlModels(ctx context.Context, limit int) (*ModelCrawl, error) {
	c.log.Info("starting model crawl", "limit", limit)

	listings, err := c.hub.ListModels(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	c.log.Info("model listing fetched", "count", len(listings))

	out := &ModelCrawl{}
	seenDatasets := map[string]bool{}
	for _, listing := range listings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		model := listing.Node
		if strings.TrimSpace(model.ID) == "" {
			c.log.Warn("skipping model with empty id")
			continue
		}

		c.discoverModelRelationships(ctx, model, listing.Card, out)
		c.collectDatasetTags(model, seenDatasets, out)
		out.Models = append(out.Models, model)

		c.pause(ctx)
	}

	c.log.Info(
		"model crawl finished",
		"models", len(out.Models),
		"datasets", len(out.Datasets),
		"relationships", len(out.Relationships),
	)
	return out, nil
}

// CrawlModel refreshes a single model by id.
func (c *Crawler) CrawlModel(ctx context.Context, modelID string) (*ModelCrawl, error) {
	node, err := c.hub.GetModel(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("get model %q: %w", modelID, err)
	}

	out := &ModelCrawl{}
	c.discoverModelRelationships(ctx, *node, nil, out)
	c.collectDatasetTags(*node, map[string]bool{}, out)
	out.Models = append(out.Models, *node)
	return out, nil
}

// discoverModelRelationships runs the classifier over the model. Card
// fetch or classification trouble costs this model its relationship, never
// the crawl.
func (c *Crawler) discoverModelRelationships(ctx context.Context, model lineage.ModelNode, card *hfhub.CardMetadata, out *ModelCrawl) {
	if card == nil {
		fetched, err := c.hub.GetModelCard(ctx, model.ID)
		if err != nil {
			if !hfhub.IsNotFound(err) {
				c.log.Debug(
					"model card fetch failed",
					"model_id", model.ID,
					"error", err,
					"retryable", httpx.IsRetryableError(err),
				)
			}
		} else {
			card = &fetched
		}
	}

	cand, ok := c.classifier.Classify(ctx, model, card)
	if !ok {
		return
	}
	out.Relationships = append(out.Relationships, lineage.Relationship{
		SourceID:   model.ID,
		TargetID:   cand.BaseModelID,
		Type:       cand.Type,
		SourceKind: lineage.KindModel,
		TargetKind: lineage.KindModel,
		Metadata:   map[string]string{"method": cand.Strategy},
	})
}

// collectDatasetTags turns dataset:<id> tags into trained_on edges plus
// dataset stubs, deduplicated within the run.
func (c *Crawler) collectDatasetTags(model lineage.ModelNode, seen map[string]bool, out *ModelCrawl) {
	for _, tag := range model.Tags {
		if !strings.HasPrefix(tag, datasetTagPrefix) {
			continue
		}
		datasetID := strings.TrimSpace(strings.TrimPrefix(tag, datasetTagPrefix))
		if datasetID == "" {
			continue
		}
		out.Relationships = append(out.Relationships, lineage.Relationship{
			SourceID:   model.ID,
			TargetID:   datasetID,
			Type:       lineage.RelTrainedOn,
			SourceKind: lineage.KindModel,
			TargetKind: lineage.KindDataset,
		})
		if !seen[datasetID] {
			seen[datasetID] = true
			out.Datasets = append(out.Datasets, lineage.StubDataset(datasetID))
		}
	}
}

// pause sleeps the fixed inter-request delay, cutting short on
// cancellation.
func (c *Crawler) pause(ctx context.Context) {
	if c.delay <= 0 {
		return
	}
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// markVisited records a dataset id for the run, reporting whether it was
// already seen.
func (c *Crawler) markVisited(datasetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.visited[datasetID] {
		return false
	}
	c.visited[datasetID] = true
	return true
}
