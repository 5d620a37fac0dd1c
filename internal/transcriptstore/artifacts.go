package transcriptstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/models"
)

// topicsPath, umbrellasPath, categoryPath and aggregatesPath implement
// the derived-artifact layout from spec.md §6.3: every topic/category/
// umbrella artifact lives under the account's topics/ subdirectory,
// with the per-video V2 topic array named {video_id}_tags_v2.json.
func (t *TranscriptStore) topicsPath(creator, videoID string) string {
	return filepath.Join(t.root, creator, "topics", videoID+"_tags_v2.json")
}

func (t *TranscriptStore) umbrellasPath(creator string) string {
	return filepath.Join(t.root, creator, "topics", "topic_umbrellas.json")
}

func (t *TranscriptStore) categoryPath(creator string) string {
	return filepath.Join(t.root, creator, "topics", "account_category.json")
}

func (t *TranscriptStore) aggregatesPath(creator string) string {
	return filepath.Join(t.root, creator, "topics", "account_tags.json")
}

// WriteTopics persists one video's combined V1+V2 TopicRecord array.
func (t *TranscriptStore) WriteTopics(creator, videoID string, records []models.TopicRecord) error {
	return writeAtomicJSON(t.topicsPath(creator, videoID), records)
}

// ReadTopics loads one video's persisted TopicRecord array.
func (t *TranscriptStore) ReadTopics(creator, videoID string) ([]models.TopicRecord, error) {
	var records []models.TopicRecord
	if err := readJSON(t.topicsPath(creator, videoID), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// WriteUmbrellas persists an account's clustered umbrella file.
func (t *TranscriptStore) WriteUmbrellas(creator string, file models.UmbrellaFile) error {
	return writeAtomicJSON(t.umbrellasPath(creator), file)
}

// WriteCategory persists an account's closed-set classification.
func (t *TranscriptStore) WriteCategory(creator string, assignment models.CategoryAssignment) error {
	return writeAtomicJSON(t.categoryPath(creator), assignment)
}

// WriteAggregates persists an account's rolled-up tag frequencies.
func (t *TranscriptStore) WriteAggregates(creator string, aggregates []models.AccountTagAggregate) error {
	return writeAtomicJSON(t.aggregatesPath(creator), aggregates)
}

// ReadUmbrellas loads an account's persisted umbrella clusters.
func (t *TranscriptStore) ReadUmbrellas(creator string) (models.UmbrellaFile, error) {
	var file models.UmbrellaFile
	if err := readJSON(t.umbrellasPath(creator), &file); err != nil {
		return models.UmbrellaFile{}, err
	}
	return file, nil
}

// ReadCategory loads an account's persisted classification.
func (t *TranscriptStore) ReadCategory(creator string) (models.CategoryAssignment, error) {
	var assignment models.CategoryAssignment
	if err := readJSON(t.categoryPath(creator), &assignment); err != nil {
		return models.CategoryAssignment{}, err
	}
	return assignment, nil
}

// HasCategory reports whether a creator has a persisted classification.
func (t *TranscriptStore) HasCategory(creator string) bool {
	_, err := os.Stat(t.categoryPath(creator))
	return err == nil
}

// HasAggregates reports whether a creator has persisted tag aggregates.
func (t *TranscriptStore) HasAggregates(creator string) bool {
	_, err := os.Stat(t.aggregatesPath(creator))
	return err == nil
}

// HasUmbrellas reports whether a creator has persisted umbrella clusters.
func (t *TranscriptStore) HasUmbrellas(creator string) bool {
	_, err := os.Stat(t.umbrellasPath(creator))
	return err == nil
}

// ReadAggregates loads an account's persisted tag aggregates.
func (t *TranscriptStore) ReadAggregates(creator string) ([]models.AccountTagAggregate, error) {
	var aggregates []models.AccountTagAggregate
	if err := readJSON(t.aggregatesPath(creator), &aggregates); err != nil {
		return nil, err
	}
	return aggregates, nil
}

// writeAtomicJSON mirrors accountindex's stage-then-rename write: a
// crash mid-write leaves the previous file intact rather than a
// half-written one.
func writeAtomicJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(apperr.KindIndexWriteError, "create artifact directory", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindIndexWriteError, "marshal artifact", err)
	}
	tmp := fmt.Sprintf("%s.tmp", path)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Wrap(apperr.KindIndexWriteError, "write artifact temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.Wrap(apperr.KindIndexWriteError, "rename artifact temp file", err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return apperr.New(apperr.KindNotFound, fmt.Sprintf("artifact not found: %s", path))
	}
	if err != nil {
		return apperr.Wrap(apperr.KindCorruptTranscript, "read artifact", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Wrap(apperr.KindCorruptTranscript, "parse artifact", err)
	}
	return nil
}
