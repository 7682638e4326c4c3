package crawler

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tz1211/datadetox/internal/domain/lineage"
	"github.com/tz1211/datadetox/internal/pkg/httpx"
	"github.com/tz1211/datadetox/internal/platform/hfhub"
)

type datasetOutcome struct {
	dataset       *lineage.DatasetNode
	relationships []lineage.Relationship
}

// CrawlDatasets enriches dataset stubs and scans each dataset's public page
// for models trained on it. Fetches run through a bounded worker pool; one
// dataset's failure is logged and isolated, never cancelling its siblings.
// Unqualified ids (no author segment) are skipped: the registry cannot
// resolve them to a detail record. Ids already fetched this run are skipped
// via the visited cache.
func (c *Crawler) CrawlDatasets(ctx context.Context, ids []string, limit int) (*DatasetCrawl, error) {
	seen := map[string]bool{}
	candidates := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		if !strings.Contains(id, "/") {
			c.log.Debug("skipping dataset without author", "dataset_id", id)
			continue
		}
		seen[id] = true
		candidates = append(candidates, id)
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	// Mark only what this call will actually fetch; ids cut by the limit
	// stay eligible for a later pass.
	pending := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if !c.markVisited(id) {
			continue
		}
		pending = append(pending, id)
	}

	c.log.Info("starting dataset crawl", "datasets", len(pending), "workers", c.workers)

	outcomes := make([]datasetOutcome, len(pending))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, id := range pending {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return nil
			}
			outcomes[i] = c.crawlDataset(ctx, id)
			c.pause(ctx)
			return nil
		})
	}
	_ = g.Wait()

	out := &DatasetCrawl{}
	for _, oc := range outcomes {
		if oc.dataset != nil {
			out.Datasets = append(out.Datasets, *oc.dataset)
		}
		out.Relationships = append(out.Relationships, oc.relationships...)
	}

	c.log.Info(
		"dataset crawl finished",
		"datasets", len(out.Datasets),
		"relationships", len(out.Relationships),
	)
	return out, ctx.Err()
}

func (c *Crawler) crawlDataset(ctx context.Context, datasetID string) datasetOutcome {
	var oc datasetOutcome

	node, err := c.hub.GetDataset(ctx, datasetID)
	if err != nil {
		c.log.Warn(
			"dataset fetch failed",
			"dataset_id", datasetID,
			"error", err,
			"retryable", httpx.IsRetryableError(err),
		)
		return oc
	}
	oc.dataset = node

	page, err := c.hub.GetDatasetPage(ctx, datasetID)
	if err != nil {
		c.log.Debug("dataset page fetch failed", "dataset_id", datasetID, "error", err)
		return oc
	}
	for _, modelID := range hfhub.ExtractTrainedModels(page) {
		oc.relationships = append(oc.relationships, lineage.Relationship{
			SourceID:   modelID,
			TargetID:   datasetID,
			Type:       lineage.RelTrainedOn,
			SourceKind: lineage.KindModel,
			TargetKind: lineage.KindDataset,
		})
	}
	return oc
}
