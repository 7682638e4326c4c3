package app

import (
	"context"
	"fmt"

	"github.com/tz1211/datadetox/internal/clients/redis"
	"github.com/tz1211/datadetox/internal/data/db"
	"github.com/tz1211/datadetox/internal/platform/hfhub"
	"github.com/tz1211/datadetox/internal/platform/logger"
	"github.com/tz1211/datadetox/internal/platform/neo4jdb"
)

type Clients struct {
	Neo4j *neo4jdb.Client
	Hub   *hfhub.Client
	Cache redis.LineageCache
	DB    *db.Service
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	neo, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init neo4j client: %w", err)
	}

	hub, err := hfhub.NewFromEnv(log)
	if err != nil {
		_ = neo.Close(context.Background())
		return Clients{}, fmt.Errorf("init registry client: %w", err)
	}

	// Nil when REDIS_ADDR is unset; the lineage path runs uncached then.
	cache, err := redis.NewLineageCache(log)
	if err != nil {
		_ = neo.Close(context.Background())
		return Clients{}, fmt.Errorf("init lineage cache: %w", err)
	}

	dbService, err := db.NewFromEnv(log)
	if err != nil {
		if cache != nil {
			_ = cache.Close()
		}
		_ = neo.Close(context.Background())
		return Clients{}, fmt.Errorf("init run ledger db: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		if cache != nil {
			_ = cache.Close()
		}
		_ = neo.Close(context.Background())
		return Clients{}, fmt.Errorf("run ledger automigrate: %w", err)
	}

	return Clients{
		Neo4j: neo,
		Hub:   hub,
		Cache: cache,
		DB:    dbService,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(context.Background())
	}
}
