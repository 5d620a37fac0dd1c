// Package snapshot mirrors Job state and IndexSegment rows into
// Postgres via gorm, so the vector index can be verified SQL-side with
// pgvector. Job rows are written only; nothing reads them back. The
// file-based stores (accountindex, transcriptstore, vectorindex)
// remain the source of truth; this is a query convenience layer,
// adapted from the teacher's storage_manager.go but rebuilt on
// gorm+pgvector rather than raw database/sql+lib/pq (see SPEC_FULL.md
// §2 for the dependency swap rationale).
package snapshot

import (
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/videoindex/ingestor/internal/models"
)

// JobSnapshot is the gorm-mapped mirror of models.Job, keyed by JobID.
type JobSnapshot struct {
	JobID       string `gorm:"primaryKey;size:64"`
	Creators    JSONStringArray `gorm:"type:jsonb"`
	Status      string `gorm:"size:32;index"`
	ErrorText   string `gorm:"type:text"`
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// TableName pins the table name rather than gorm's pluralisation.
func (JobSnapshot) TableName() string { return "ingestor_jobs" }

// SegmentSnapshot mirrors one models.IndexSegment row, with its
// embedding in a pgvector column for SQL-side similarity queries
// (spec.md §4.6's file-based store stays authoritative; this is a
// queryable read replica).
type SegmentSnapshot struct {
	SegmentID  int64  `gorm:"primaryKey"`
	Creator    string `gorm:"size:128;index"`
	VideoID    string `gorm:"size:128;index"`
	StartSec   float64
	EndSec     float64
	Text       string `gorm:"type:text"`
	IngestedAt time.Time
	// Embedding has no fixed dimension in the column type: the
	// embedder port's dimension is a runtime config value, not a
	// compile-time constant, and pgvector accepts an unconstrained
	// "vector" column.
	Embedding *pgvector.Vector `gorm:"type:vector"`
}

// TableName pins the table name rather than gorm's pluralisation.
func (SegmentSnapshot) TableName() string { return "ingestor_segments" }

// Store wraps a gorm connection for the two mirrored tables.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the mirror tables. A blank
// dsn disables the snapshot layer entirely (Open returns nil, nil):
// the file-based stores function without Postgres, per spec.md's
// Postgres dependency being an optional durability add-on, not a
// hard requirement.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, nil
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := db.AutoMigrate(&JobSnapshot{}, &SegmentSnapshot{}); err != nil {
		return nil, fmt.Errorf("migrate snapshot schema: %w", err)
	}

	return &Store{db: db}, nil
}

// UpsertJob writes or updates a job's snapshot row.
func (s *Store) UpsertJob(job models.Job) error {
	if s == nil {
		return nil
	}
	row := JobSnapshot{
		JobID:       job.JobID,
		Creators:    job.Creators,
		Status:      string(job.Status),
		ErrorText:   job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	return s.db.Save(&row).Error
}

// AppendSegments mirrors newly appended vector-index segments.
func (s *Store) AppendSegments(segments []models.IndexSegment) error {
	if s == nil || len(segments) == 0 {
		return nil
	}
	rows := make([]SegmentSnapshot, len(segments))
	for i, seg := range segments {
		vec := pgvector.NewVector(seg.Embedding)
		rows[i] = SegmentSnapshot{
			SegmentID:  seg.SegmentID,
			Creator:    seg.Creator,
			VideoID:    seg.VideoID,
			StartSec:   seg.StartSec,
			EndSec:     seg.EndSec,
			Text:       seg.Text,
			IngestedAt: seg.IngestedAt,
			Embedding:  &vec,
		}
	}
	return s.db.CreateInBatches(rows, 200).Error
}

// ReplaceSegments wholesale replaces the mirrored segment rows inside
// one transaction, mirroring vectorindex.Index.Rebuild's wholesale
// replace semantics (spec.md §4.6 rebuild_from_transcripts).
func (s *Store) ReplaceSegments(segments []models.IndexSegment) error {
	if s == nil {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&SegmentSnapshot{}).Error; err != nil {
			return err
		}
		if len(segments) == 0 {
			return nil
		}
		rows := make([]SegmentSnapshot, len(segments))
		for i, seg := range segments {
			vec := pgvector.NewVector(seg.Embedding)
			rows[i] = SegmentSnapshot{
				SegmentID:  seg.SegmentID,
				Creator:    seg.Creator,
				VideoID:    seg.VideoID,
				StartSec:   seg.StartSec,
				EndSec:     seg.EndSec,
				Text:       seg.Text,
				IngestedAt: seg.IngestedAt,
				Embedding:  &vec,
			}
		}
		return tx.CreateInBatches(rows, 200).Error
	})
}

// SegmentCount returns the mirrored row count, for cross-checking
// against vectorindex.Index.Size() in /api/verify/system.
func (s *Store) SegmentCount() (int64, error) {
	if s == nil {
		return 0, nil
	}
	var count int64
	err := s.db.Model(&SegmentSnapshot{}).Count(&count).Error
	return count, err
}
