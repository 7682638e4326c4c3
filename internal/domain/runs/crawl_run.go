package runs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Pipeline stages recorded in the ledger.
const (
	StageCrawl = "crawl"
	StageBuild = "build_graph"
	StageLoad  = "load"
	StageFull  = "full"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// CrawlRun is one recorded pipeline stage execution. IDs and timestamps are
// generated client-side so the table behaves identically on Postgres and
// sqlite; no column carries a database-side default function.
type CrawlRun struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Stage         string         `gorm:"column:stage;not null;index" json:"stage"`
	Status        string         `gorm:"column:status;not null;index" json:"status"`
	Limit         int            `gorm:"column:crawl_limit;not null;default:0" json:"limit"`
	Models        int            `gorm:"column:models;not null;default:0" json:"models"`
	Datasets      int            `gorm:"column:datasets;not null;default:0" json:"datasets"`
	Relationships int            `gorm:"column:relationships;not null;default:0" json:"relationships"`
	Stats         datatypes.JSON `gorm:"column:stats" json:"stats,omitempty"`
	Error         string         `gorm:"column:error" json:"error,omitempty"`
	StartedAt     time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	FinishedAt    *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (CrawlRun) TableName() string { return "crawl_run" }
