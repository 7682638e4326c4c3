package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tz1211/datadetox/internal/clients/redis"
	"github.com/tz1211/datadetox/internal/crawler"
	"github.com/tz1211/datadetox/internal/data/db"
	graphstore "github.com/tz1211/datadetox/internal/data/graph"
	runsrepo "github.com/tz1211/datadetox/internal/data/repos/runs"
	"github.com/tz1211/datadetox/internal/graph"
	"github.com/tz1211/datadetox/internal/platform/hfhub"
	"github.com/tz1211/datadetox/internal/platform/logger"
	"github.com/tz1211/datadetox/internal/platform/neo4jdb"
	"github.com/tz1211/datadetox/internal/platform/shutdown"
	"github.com/tz1211/datadetox/internal/services"
	"github.com/tz1211/datadetox/internal/storage/snapshots"
)

// cliOptions holds the parsed stage selection and tuning flags.
type cliOptions struct {
	crawl   bool
	build   bool
	load    bool
	clear   bool
	commit  bool
	full    bool
	stats   bool
	limit   int
	keep    int
	message string
}

// anyStage reports whether at least one pipeline stage was selected.
// -clear alone is a modifier, not a stage.
func (o cliOptions) anyStage() bool {
	return o.crawl || o.build || o.load || o.commit || o.full || o.stats
}

// newFlagSet binds the CLI flags onto opts. Tests parse argument slices
// through it without touching the process-global flag state.
func newFlagSet(opts *cliOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("lineage", flag.ContinueOnError)
	fs.BoolVar(&opts.crawl, "crawl", false, "Run the registry crawl stage")
	fs.BoolVar(&opts.build, "build-graph", false, "Build the lineage graph from saved snapshots")
	fs.BoolVar(&opts.load, "load", false, "Load the built graph into Neo4j")
	fs.BoolVar(&opts.clear, "clear", false, "Clear existing Neo4j data before loading (with -load or -full)")
	fs.BoolVar(&opts.commit, "commit", false, "Commit snapshots to DVC and git")
	fs.BoolVar(&opts.full, "full", false, "Run the full pipeline (crawl -> build -> load -> commit)")
	fs.BoolVar(&opts.stats, "stats", false, "Print graph store statistics as JSON")
	fs.IntVar(&opts.limit, "limit", 0, "Number of models to crawl (default 100)")
	fs.IntVar(&opts.keep, "keep", 0, "Keep only the N most recent snapshot files per kind")
	fs.StringVar(&opts.message, "message", "", "Commit message for version control")
	fs.Usage = func() { printUsage(fs) }
	return fs
}

func main() {
	var opts cliOptions
	fs := newFlagSet(&opts)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if !opts.anyStage() {
		fs.Usage()
		return
	}

	_ = godotenv.Load()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	// Clients
	neo, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Neo4j init failed", "error", err)
		os.Exit(1)
	}
	defer neo.Close(context.Background())

	hub, err := hfhub.NewFromEnv(log)
	if err != nil {
		log.Error("Registry client init failed", "error", err)
		os.Exit(1)
	}

	cache, err := redis.NewLineageCache(log)
	if err != nil {
		log.Warn("Lineage cache unavailable (continuing without)", "error", err)
	}
	if cache != nil {
		defer cache.Close()
	}

	var runRepo runsrepo.CrawlRunRepo
	dbService, err := db.NewFromEnv(log)
	if err != nil {
		log.Warn("Run ledger unavailable (continuing without)", "error", err)
	} else if err := dbService.AutoMigrateAll(); err != nil {
		log.Warn("Run ledger migration failed (continuing without)", "error", err)
	} else {
		runRepo = runsrepo.NewCrawlRunRepo(dbService.DB(), log)
	}

	// Pipeline
	classifier := crawler.NewClassifier(hub, log)
	crawl := crawler.New(hub, classifier, crawler.ConfigFromEnv(), log)
	builder := graph.NewBuilder(log)

	snapshotStore, err := snapshots.NewFromEnv(log)
	if err != nil {
		log.Error("Snapshot store init failed", "error", err)
		os.Exit(1)
	}

	store := graphstore.NewLineageStore(neo, log)
	pipeline := services.NewPipelineService(log, crawl, builder, snapshotStore, store, cache, runRepo, opts.keep)

	if opts.clear && !opts.load && !opts.full {
		log.Warn("-clear has no effect without -load or -full")
	}

	ranStages := false
	if opts.full {
		ranStages = true
		if err := pipeline.Full(ctx, opts.limit, opts.clear); err != nil {
			log.Error("Pipeline failed", "error", err)
			os.Exit(1)
		}
	} else {
		if opts.crawl {
			ranStages = true
			if _, err := pipeline.Crawl(ctx, opts.limit); err != nil {
				log.Error("Crawl stage failed", "error", err)
				os.Exit(1)
			}
		}
		// -load rebuilds internally, so a standalone build only runs when no
		// load was requested.
		if opts.build && !opts.load {
			ranStages = true
			if _, err := pipeline.BuildGraph(ctx); err != nil {
				log.Error("Build stage failed", "error", err)
				os.Exit(1)
			}
		}
		if opts.load {
			ranStages = true
			if _, err := pipeline.LoadStore(ctx, opts.clear); err != nil {
				log.Error("Load stage failed", "error", err)
				os.Exit(1)
			}
		}
		if opts.commit {
			ranStages = true
			pipeline.CommitSnapshots(ctx, opts.message)
		}
	}

	if ranStages {
		log.Info("Pipeline completed successfully")
	}

	if opts.stats {
		stats, err := store.Statistics(ctx)
		if err != nil {
			log.Error("Statistics failed", "error", err)
			os.Exit(1)
		}
		blob, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			log.Error("Statistics encode failed", "error", err)
			os.Exit(1)
		}
		fmt.Println(string(blob))
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Println("Usage: lineage [options]")
	fmt.Println()
	fmt.Println("Crawl registry model lineage, build the graph, and load Neo4j")
	fmt.Println()
	fmt.Println("Options:")
	fs.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Run the full pipeline")
	fmt.Println("  lineage -full")
	fmt.Println()
	fmt.Println("  # Crawl only, limited to 100 models")
	fmt.Println("  lineage -crawl -limit 100")
	fmt.Println()
	fmt.Println("  # Build the graph from existing snapshots")
	fmt.Println("  lineage -build-graph")
	fmt.Println()
	fmt.Println("  # Load to Neo4j, clearing existing data first")
	fmt.Println("  lineage -load -clear")
}
