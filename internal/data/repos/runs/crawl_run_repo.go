package runs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/tz1211/datadetox/internal/domain/runs"
	"github.com/tz1211/datadetox/internal/pkg/dbctx"
	pkgerrors "github.com/tz1211/datadetox/internal/pkg/errors"
	"github.com/tz1211/datadetox/internal/platform/logger"
)

// CrawlRunRepo persists the pipeline's run ledger. The ledger is optional
// infrastructure: callers hold a nil repo when no database is configured and
// simply skip recording.
type CrawlRunRepo interface {
	Create(dbc dbctx.Context, run *runs.CrawlRun) (*runs.CrawlRun, error)
	Finish(dbc dbctx.Context, id uuid.UUID, status string, updates map[string]interface{}) error
	GetLatest(dbc dbctx.Context, stage string) (*runs.CrawlRun, error)
	ListRecent(dbc dbctx.Context, limit int) ([]*runs.CrawlRun, error)
}

type crawlRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCrawlRunRepo(db *gorm.DB, baseLog *logger.Logger) CrawlRunRepo {
	return &crawlRunRepo{
		db:  db,
		log: baseLog.With("repo", "CrawlRunRepo"),
	}
}

func (r *crawlRunRepo) Create(dbc dbctx.Context, run *runs.CrawlRun) (*runs.CrawlRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if run == nil {
		return nil, nil
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = runs.StatusRunning
	}
	if err := transaction.WithContext(dbc.Ctx).Create(run).Error; err != nil {
		return nil, classify("create crawl run", err)
	}
	return run, nil
}

func (r *crawlRunRepo) Finish(dbc dbctx.Context, id uuid.UUID, status string, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	now := time.Now().UTC()
	updates["status"] = status
	updates["finished_at"] = now
	updates["updated_at"] = now
	err := transaction.WithContext(dbc.Ctx).
		Model(&runs.CrawlRun{}).
		Where("id = ?", id).
		Updates(updates).Error
	return classify("finish crawl run", err)
}

func (r *crawlRunRepo) GetLatest(dbc dbctx.Context, stage string) (*runs.CrawlRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&runs.CrawlRun{})
	if stage != "" {
		q = q.Where("stage = ?", stage)
	}
	var run runs.CrawlRun
	err := q.Order("started_at DESC").Limit(1).Find(&run).Error
	if err != nil {
		return nil, classify("get latest crawl run", err)
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *crawlRunRepo) ListRecent(dbc dbctx.Context, limit int) ([]*runs.CrawlRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 20
	}
	var out []*runs.CrawlRun
	if err := transaction.WithContext(dbc.Ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, classify("list recent crawl runs", err)
	}
	return out, nil
}

// classify maps driver failures onto the package error taxonomy. Unique and
// foreign-key violations come typed from pgconn on Postgres; sqlite only
// surfaces text, so the string fallbacks cover it.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, pkgerrors.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return fmt.Errorf("%s: duplicate run: %w", op, err) // unique_violation
		case "23503":
			return fmt.Errorf("%s: referenced row missing: %w", op, err) // foreign_key_violation
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy") {
		return fmt.Errorf("%s: ledger busy: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
