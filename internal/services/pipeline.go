package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/tz1211/datadetox/internal/clients/redis"
	"github.com/tz1211/datadetox/internal/crawler"
	graphstore "github.com/tz1211/datadetox/internal/data/graph"
	runsrepo "github.com/tz1211/datadetox/internal/data/repos/runs"
	"github.com/tz1211/datadetox/internal/domain/lineage"
	"github.com/tz1211/datadetox/internal/domain/runs"
	"github.com/tz1211/datadetox/internal/graph"
	"github.com/tz1211/datadetox/internal/pkg/dbctx"
	"github.com/tz1211/datadetox/internal/platform/logger"
	"github.com/tz1211/datadetox/internal/storage/snapshots"
	"github.com/tz1211/datadetox/internal/utils"
)

// CrawlSummary reports what one crawl stage produced and where it landed.
type CrawlSummary struct {
	Models        int                  `json:"models"`
	Datasets      int                  `json:"datasets"`
	Relationships int                  `json:"relationships"`
	Timestamp     time.Time            `json:"timestamp"`
	Paths         snapshots.SavedPaths `json:"paths"`
}

// PipelineService runs the ingestion stages. Stages are sequential and
// single-process; each one records a run-ledger row when a ledger is wired
// and works identically without one.
type PipelineService interface {
	Crawl(ctx context.Context, limit int) (*CrawlSummary, error)
	BuildGraph(ctx context.Context) (lineage.GraphSnapshot, error)
	LoadStore(ctx context.Context, clear bool) (*graphstore.LoadReport, error)
	CommitSnapshots(ctx context.Context, message string)
	Full(ctx context.Context, limit int, clear bool) error
}

type pipelineService struct {
	log       *logger.Logger
	crawler   *crawler.Crawler
	builder   *graph.Builder
	snapshots *snapshots.Store
	store     graphstore.LineageStore
	cache     redis.LineageCache
	runs      runsrepo.CrawlRunRepo
	keep      int
}

func NewPipelineService(
	baseLog *logger.Logger,
	crawl *crawler.Crawler,
	builder *graph.Builder,
	snapshotStore *snapshots.Store,
	store graphstore.LineageStore,
	cache redis.LineageCache,
	runRepo runsrepo.CrawlRunRepo,
	keep int,
) PipelineService {
	serviceLog := baseLog.With("service", "PipelineService")
	if keep <= 0 {
		keep = utils.GetEnvAsInt("SNAPSHOT_KEEP", 5, baseLog)
	}
	return &pipelineService{
		log:       serviceLog,
		crawler:   crawl,
		builder:   builder,
		snapshots: snapshotStore,
		store:     store,
		cache:     cache,
		runs:      runRepo,
		keep:      keep,
	}
}

// =====================================
// Crawl stage
// =====================================

// defaultCrawlLimit applies when a caller passes no limit; the registry
// listing endpoint requires a positive one.
const defaultCrawlLimit = 100

func (ps *pipelineService) Crawl(ctx context.Context, limit int) (*CrawlSummary, error) {
	if limit <= 0 {
		limit = defaultCrawlLimit
	}
	run := ps.recordStart(ctx, runs.StageCrawl, limit)

	modelCrawl, err := ps.crawler.CrawlModels(ctx, limit)
	if err != nil {
		ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
		return nil, fmt.Errorf("crawl models: %w", err)
	}

	datasetIDs := make([]string, 0, len(modelCrawl.Datasets))
	for _, d := range modelCrawl.Datasets {
		datasetIDs = append(datasetIDs, d.ID)
	}
	datasetCrawl, err := ps.crawler.CrawlDatasets(ctx, datasetIDs, 0)
	if err != nil {
		ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
		return nil, fmt.Errorf("crawl datasets: %w", err)
	}

	snap := lineage.GraphSnapshot{
		Models:        modelCrawl.Models,
		Datasets:      mergeDatasets(modelCrawl.Datasets, datasetCrawl.Datasets),
		Relationships: append(modelCrawl.Relationships, datasetCrawl.Relationships...),
	}

	ts := time.Now().UTC()
	paths, err := ps.snapshots.SaveSnapshot(snap, ts)
	if err != nil {
		ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
		return nil, fmt.Errorf("save snapshots: %w", err)
	}
	ps.snapshots.RetainAll(ps.keep)

	models, datasets, relationships := snap.Counts()
	ps.recordFinish(ctx, run, runs.StatusSucceeded, map[string]interface{}{
		"models":        models,
		"datasets":      datasets,
		"relationships": relationships,
		"stats":         relationshipStats(snap.Relationships),
	}, nil)
	ps.log.Info(
		"crawl stage finished",
		"models", models,
		"datasets", datasets,
		"relationships", relationships,
	)

	return &CrawlSummary{
		Models:        models,
		Datasets:      datasets,
		Relationships: relationships,
		Timestamp:     ts,
		Paths:         paths,
	}, nil
}

// mergeDatasets overlays enriched records onto the tag-derived stubs,
// keeping stub order and appending anything new at the end.
func mergeDatasets(stubs, enriched []lineage.DatasetNode) []lineage.DatasetNode {
	out := make([]lineage.DatasetNode, len(stubs))
	copy(out, stubs)
	index := make(map[string]int, len(out))
	for i, d := range out {
		index[d.ID] = i
	}
	for _, d := range enriched {
		if i, ok := index[d.ID]; ok {
			out[i] = d
			continue
		}
		index[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}

// =====================================
// Build stage
// =====================================

func (ps *pipelineService) BuildGraph(ctx context.Context) (lineage.GraphSnapshot, error) {
	run := ps.recordStart(ctx, runs.StageBuild, 0)

	models, found, err := ps.snapshots.LoadLatestModels()
	if err != nil {
		ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
		return lineage.GraphSnapshot{}, err
	}
	if !found || len(models) == 0 {
		err := fmt.Errorf("no model snapshot found; run the crawl stage first")
		ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
		return lineage.GraphSnapshot{}, err
	}

	relationships, found, err := ps.snapshots.LoadLatestRelationships()
	if err != nil {
		ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
		return lineage.GraphSnapshot{}, err
	}
	if !found || len(relationships) == 0 {
		ps.log.Warn("no relationship snapshot found; building a graph with no edges")
	}

	datasets, _, err := ps.snapshots.LoadLatestDatasets()
	if err != nil {
		ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
		return lineage.GraphSnapshot{}, err
	}

	snap := ps.builder.Build(models, relationships, datasets)

	m, d, r := snap.Counts()
	ps.recordFinish(ctx, run, runs.StatusSucceeded, map[string]interface{}{
		"models":        m,
		"datasets":      d,
		"relationships": r,
	}, nil)
	return snap, nil
}

// =====================================
// Load stage
// =====================================

// LoadStore rebuilds the snapshot from the latest files and writes it into
// the graph store, so the stage works standalone without a prior in-process
// build.
func (ps *pipelineService) LoadStore(ctx context.Context, clear bool) (*graphstore.LoadReport, error) {
	snap, err := ps.BuildGraph(ctx)
	if err != nil {
		return nil, err
	}
	return ps.loadSnapshot(ctx, snap, clear)
}

func (ps *pipelineService) loadSnapshot(ctx context.Context, snap lineage.GraphSnapshot, clear bool) (*graphstore.LoadReport, error) {
	run := ps.recordStart(ctx, runs.StageLoad, 0)

	// An unreachable store fails the stage up front instead of producing a
	// stream of per-row failures.
	if err := ps.store.Ping(ctx); err != nil {
		ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
		return nil, fmt.Errorf("graph store unreachable: %w", err)
	}

	if clear {
		if err := ps.store.Clear(ctx); err != nil {
			ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
			return nil, fmt.Errorf("clear graph: %w", err)
		}
	}

	report, err := ps.store.Load(ctx, snap)
	if err != nil {
		ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
		return nil, fmt.Errorf("load graph: %w", err)
	}

	if ps.cache != nil {
		if err := ps.cache.Invalidate(ctx); err != nil {
			ps.log.Warn("lineage cache invalidation failed", "error", err)
		}
	}

	updates := map[string]interface{}{
		"models":        report.Models.Succeeded,
		"datasets":      report.Datasets.Succeeded,
		"relationships": report.Relationships.Succeeded,
	}
	if stats, err := ps.store.Statistics(ctx); err != nil {
		ps.log.Warn("statistics after load failed", "error", err)
	} else {
		ps.log.Info(
			"graph statistics",
			"models", stats.Models,
			"datasets", stats.Datasets,
			"relationships", stats.Relationships,
		)
		if raw, err := json.Marshal(stats.RelationshipTypes); err == nil {
			updates["stats"] = datatypes.JSON(raw)
		}
	}
	ps.recordFinish(ctx, run, runs.StatusSucceeded, updates, nil)
	return &report, nil
}

// =====================================
// Commit + full run
// =====================================

func (ps *pipelineService) CommitSnapshots(ctx context.Context, message string) {
	ps.snapshots.CommitVersions(ctx, message)
}

func (ps *pipelineService) Full(ctx context.Context, limit int, clear bool) error {
	run := ps.recordStart(ctx, runs.StageFull, limit)

	summary, err := ps.Crawl(ctx, limit)
	if err != nil {
		ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
		return err
	}
	snap, err := ps.BuildGraph(ctx)
	if err != nil {
		ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
		return err
	}
	if _, err := ps.loadSnapshot(ctx, snap, clear); err != nil {
		ps.recordFinish(ctx, run, runs.StatusFailed, nil, err)
		return err
	}
	ps.CommitSnapshots(ctx, "")

	ps.recordFinish(ctx, run, runs.StatusSucceeded, map[string]interface{}{
		"models":        summary.Models,
		"datasets":      summary.Datasets,
		"relationships": summary.Relationships,
	}, nil)
	return nil
}

// =====================================
// Run ledger helpers
// =====================================

func (ps *pipelineService) recordStart(ctx context.Context, stage string, limit int) *runs.CrawlRun {
	if ps.runs == nil {
		return nil
	}
	created, err := ps.runs.Create(dbctx.From(ctx), &runs.CrawlRun{
		Stage: stage,
		Limit: limit,
	})
	if err != nil {
		ps.log.Warn("run ledger create failed", "stage", stage, "error", err)
		return nil
	}
	return created
}

func (ps *pipelineService) recordFinish(ctx context.Context, run *runs.CrawlRun, status string, updates map[string]interface{}, runErr error) {
	if ps.runs == nil || run == nil {
		return
	}
	if runErr != nil {
		if updates == nil {
			updates = map[string]interface{}{}
		}
		updates["error"] = runErr.Error()
	}
	if err := ps.runs.Finish(dbctx.From(ctx), run.ID, status, updates); err != nil {
		ps.log.Warn("run ledger finish failed", "run_id", run.ID, "error", err)
	}
}

func relationshipStats(relationships []lineage.Relationship) datatypes.JSON {
	hist := map[string]int{}
	for _, r := range relationships {
		hist[string(r.Type)]++
	}
	raw, err := json.Marshal(hist)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
