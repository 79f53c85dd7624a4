// Package storage keeps the score ledger: one row per (degraded file, metric)
// so scoring can resume and aggregate across runs.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/CodecSweep/pkg/models"
)

const DefaultDBFile = "codecsweep.sqlite3"
const errDBClientNil = "db client is nil"

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Score is one scored (or failed) pair.
type Score struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	Source        string `gorm:"index:idx_score_source" json:"source"` // Metadata file the pair came from
	RunID         string `gorm:"type:varchar(36);index:idx_score_run" json:"run_id"`
	ReferencePath string `json:"reference_path"`
	DegradedPath  string `gorm:"uniqueIndex:idx_score_unique,priority:1" json:"degraded_path"`
	Metric        string `gorm:"uniqueIndex:idx_score_unique,priority:2" json:"metric"`
	Codec         string `gorm:"index:idx_score_codec,priority:1" json:"codec"`
	Bitrate       int    `gorm:"index:idx_score_codec,priority:2" json:"bitrate"`
	Score         float64
	Success       bool
	ErrorKind     string
	Reason        string
	UpdatedAt     time.Time
}

// Run records one sweep or scoring invocation.
type Run struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	Kind         string `gorm:"index:idx_run_kind"` // sweep or score
	MetadataPath string
	Attempted    int
	Failed       int
	StartedAt    time.Time
	FinishedAt   time.Time
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("CODECSWEEP_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// sqlite has a single writer; one connection keeps scoring workers from SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Score{}, &Run{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// UpsertScore inserts rec or replaces the row for the same degraded file and metric.
func (c *DBClient) UpsertScore(source string, rec models.ScoreRecord) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	row := Score{
		Source:        source,
		RunID:         rec.RunID,
		ReferencePath: rec.ReferencePath,
		DegradedPath:  rec.DegradedPath,
		Metric:        rec.Metric,
		Codec:         rec.Codec,
		Bitrate:       rec.Bitrate,
		Score:         rec.Score,
		Success:       rec.Success,
		ErrorKind:     string(rec.ErrorKind),
		Reason:        rec.Reason,
	}
	err := c.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "degraded_path"}, {Name: "metric"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source", "run_id", "reference_path", "codec", "bitrate", "score",
			"success", "error_kind", "reason", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upserting score for %s: %w", rec.DegradedPath, err)
	}
	return nil
}

// HasScore reports whether a successful score exists for the pair.
func (c *DBClient) HasScore(degradedPath, metric string) (bool, error) {
	if c == nil || c.DB == nil {
		return false, errors.New(errDBClientNil)
	}
	var n int64
	err := c.DB.Model(&Score{}).
		Where("degraded_path = ? AND metric = ? AND success = ?", degradedPath, metric, true).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("querying score: %w", err)
	}
	return n > 0, nil
}

// ScoresFor returns the ledger rows of one metadata file, ordered by codec, bitrate and path.
func (c *DBClient) ScoresFor(source, metric string) ([]models.ScoreRecord, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	q := c.DB.Where("source = ?", source)
	if metric != "" {
		q = q.Where("metric = ?", metric)
	}
	var rows []Score
	if err := q.Order("codec, bitrate, degraded_path").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying scores: %w", err)
	}
	out := make([]models.ScoreRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.ScoreRecord{
			RunID:         r.RunID,
			ReferencePath: r.ReferencePath,
			DegradedPath:  r.DegradedPath,
			Codec:         r.Codec,
			Bitrate:       r.Bitrate,
			Metric:        r.Metric,
			Score:         r.Score,
			Success:       r.Success,
			ErrorKind:     models.ErrorKind(r.ErrorKind),
			Reason:        r.Reason,
		})
	}
	return out, nil
}

type aggregateRow struct {
	Codec   string
	Bitrate int
	Metric  string
	Count   int
	Failed  int
	Mean    sql.NullFloat64
	Lo      sql.NullFloat64
	Hi      sql.NullFloat64
	MeanSq  sql.NullFloat64
}

// Aggregate summarizes one metadata file's scores per codec, bitrate and metric.
// StdDev is the population standard deviation.
func (c *DBClient) Aggregate(source, metric string) ([]models.ScoreSummary, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	q := c.DB.Model(&Score{}).
		Select(`codec, bitrate, metric,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) AS count,
			SUM(CASE WHEN success THEN 0 ELSE 1 END) AS failed,
			AVG(CASE WHEN success THEN score END) AS mean,
			MIN(CASE WHEN success THEN score END) AS lo,
			MAX(CASE WHEN success THEN score END) AS hi,
			AVG(CASE WHEN success THEN score * score END) AS mean_sq`).
		Where("source = ?", source)
	if metric != "" {
		q = q.Where("metric = ?", metric)
	}

	var rows []aggregateRow
	if err := q.Group("codec, bitrate, metric").Order("codec, bitrate, metric").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("aggregating scores: %w", err)
	}

	out := make([]models.ScoreSummary, 0, len(rows))
	for _, r := range rows {
		s := models.ScoreSummary{
			Codec:   r.Codec,
			Bitrate: r.Bitrate,
			Metric:  r.Metric,
			Count:   r.Count,
			Failed:  r.Failed,
			Mean:    r.Mean.Float64,
			Min:     r.Lo.Float64,
			Max:     r.Hi.Float64,
		}
		if r.Count > 0 {
			s.StdDev = math.Sqrt(math.Max(0, r.MeanSq.Float64-r.Mean.Float64*r.Mean.Float64))
		}
		out = append(out, s)
	}
	return out, nil
}

// RecordRun saves or updates a run row.
func (c *DBClient) RecordRun(run Run) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if err := c.DB.Save(&run).Error; err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

// Runs lists recorded runs of a kind, newest first.
func (c *DBClient) Runs(kind string) ([]Run, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var runs []Run
	if err := c.DB.Where("kind = ?", kind).Order("started_at DESC").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return runs, nil
}
