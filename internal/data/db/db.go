package db

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/tz1211/datadetox/internal/domain/runs"
	"github.com/tz1211/datadetox/internal/platform/logger"
	"github.com/tz1211/datadetox/internal/utils"
)

// Service owns the relational handle backing the crawl-run ledger. The graph
// itself lives in Neo4j; this side only records pipeline executions, so a
// local sqlite file is the default and Postgres is opt-in via DB_DRIVER.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFromEnv(baseLog *logger.Logger) (*Service, error) {
	serviceLog := baseLog.With("service", "DBService")

	driver := utils.GetEnv("DB_DRIVER", "sqlite", baseLog)

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	switch driver {
	case "postgres":
		host := utils.GetEnv("POSTGRES_HOST", "localhost", baseLog)
		port := utils.GetEnv("POSTGRES_PORT", "5432", baseLog)
		user := utils.GetEnv("POSTGRES_USER", "postgres", baseLog)
		password := utils.GetEnv("POSTGRES_PASSWORD", "", baseLog)
		name := utils.GetEnv("POSTGRES_NAME", "datadetox", baseLog)

		dsn := fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			user,
			password,
			host,
			port,
			name,
		)

		gdb, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		return &Service{db: gdb, log: serviceLog}, nil

	case "sqlite":
		path := utils.GetEnv("SQLITE_PATH", "data/datadetox.db", baseLog)
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory %s: %w", dir, err)
			}
		}
		gdb, err := gorm.Open(sqlite.Open(path), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite at %s: %w", path, err)
		}
		return &Service{db: gdb, log: serviceLog}, nil

	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q (want postgres or sqlite)", driver)
	}
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating run ledger tables...")
	if err := s.db.AutoMigrate(&runs.CrawlRun{}); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}
