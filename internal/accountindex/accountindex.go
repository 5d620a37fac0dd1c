// Package accountindex implements C1: the single source of truth for
// what has been processed per creator (spec.md §4.1).
package accountindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/models"
)

// AccountIndex is serialised per creator by the caller (JobManager);
// it holds one file-lock mutex per creator to make that invariant
// cheap to enforce even if callers forget.
type AccountIndex struct {
	root  string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds an AccountIndex rooted at ACCOUNTS_DIR.
func New(accountsDir string) *AccountIndex {
	return &AccountIndex{root: accountsDir, locks: map[string]*sync.Mutex{}}
}

func (a *AccountIndex) lockFor(creator string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[creator]
	if !ok {
		l = &sync.Mutex{}
		a.locks[creator] = l
	}
	return l
}

func (a *AccountIndex) path(creator string) string {
	return filepath.Join(a.root, creator, "index.json")
}

// Load returns the creator's AccountIndexFile, creating an empty one
// in memory (not yet persisted) if none exists on disk.
func (a *AccountIndex) Load(creator string) (models.AccountIndexFile, error) {
	l := a.lockFor(creator)
	l.Lock()
	defer l.Unlock()
	return a.loadLocked(creator)
}

func (a *AccountIndex) loadLocked(creator string) (models.AccountIndexFile, error) {
	data, err := os.ReadFile(a.path(creator))
	if os.IsNotExist(err) {
		now := time.Now().UTC()
		return models.AccountIndexFile{
			Creator:         creator,
			CreatedAt:       now,
			LastUpdated:     now,
			ProcessedVideos: map[string]models.ProcessedVideoRecord{},
		}, nil
	}
	if err != nil {
		return models.AccountIndexFile{}, apperr.Wrap(apperr.KindIndexWriteError, "read account index", err)
	}

	var file models.AccountIndexFile
	if err := json.Unmarshal(data, &file); err != nil {
		return models.AccountIndexFile{}, apperr.Wrap(apperr.KindIndexWriteError, "parse account index", err)
	}
	if file.ProcessedVideos == nil {
		file.ProcessedVideos = map[string]models.ProcessedVideoRecord{}
	}
	return file, nil
}

// ProcessedIDs returns the set of video ids already accounted for.
// By default only success=true records count; includeFailed opts in
// to also counting terminally-failed videos (so they aren't retried).
func (a *AccountIndex) ProcessedIDs(creator string, includeFailed bool) (map[string]struct{}, error) {
	file, err := a.Load(creator)
	if err != nil {
		return nil, err
	}
	set := map[string]struct{}{}
	for id, rec := range file.ProcessedVideos {
		if rec.Success || includeFailed {
			set[id] = struct{}{}
		}
	}
	return set, nil
}

// FilterNew preserves input order, dropping videos already present
// (per ProcessedIDs with includeFailed=true, matching AccountIndexFile's
// invariant that a record exists whenever a terminal outcome was reached).
func (a *AccountIndex) FilterNew(creator string, candidates []models.VideoMeta) ([]models.VideoMeta, error) {
	seen, err := a.ProcessedIDs(creator, true)
	if err != nil {
		return nil, err
	}
	out := make([]models.VideoMeta, 0, len(candidates))
	for _, v := range candidates {
		if _, ok := seen[v.VideoID]; ok {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Commit atomically replaces the whole file with the record upserted,
// updating stats and last_updated. Write order: temp file + rename,
// so a crash never leaves a partial file on disk.
func (a *AccountIndex) Commit(creator string, rec models.ProcessedVideoRecord) error {
	l := a.lockFor(creator)
	l.Lock()
	defer l.Unlock()

	file, err := a.loadLocked(creator)
	if err != nil {
		return err
	}

	_, existed := file.ProcessedVideos[rec.VideoID]
	file.ProcessedVideos[rec.VideoID] = rec
	file.LastUpdated = time.Now().UTC()

	if !existed {
		file.Stats.TotalFound++
	}
	if rec.Success {
		file.Stats.Processed++
	} else {
		file.Stats.Failed++
	}
	file.Stats.LastRunAt = file.LastUpdated

	return a.writeAtomic(creator, file)
}

// MarkSkipped bumps the skipped counter without creating a record
// (used by the pipeline for videos longer than max_duration_minutes,
// which it does not persist a ProcessedVideoRecord for).
func (a *AccountIndex) MarkSkipped(creator string) error {
	l := a.lockFor(creator)
	l.Lock()
	defer l.Unlock()

	file, err := a.loadLocked(creator)
	if err != nil {
		return err
	}
	file.Stats.Skipped++
	file.LastUpdated = time.Now().UTC()
	file.Stats.LastRunAt = file.LastUpdated
	return a.writeAtomic(creator, file)
}

// ListCreators returns every creator with an index.json on disk,
// sorted ascending (determinism for §6.2's GET /api/accounts).
func (a *AccountIndex) ListCreators() ([]string, error) {
	entries, err := os.ReadDir(a.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIndexWriteError, "list accounts directory", err)
	}
	var creators []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, statErr := os.Stat(filepath.Join(a.root, e.Name(), "index.json")); statErr != nil {
			continue
		}
		creators = append(creators, e.Name())
	}
	sort.Strings(creators)
	return creators, nil
}

func (a *AccountIndex) writeAtomic(creator string, file models.AccountIndexFile) error {
	dir := filepath.Join(a.root, creator)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.KindIndexWriteError, "create account directory", err)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindIndexWriteError, "marshal account index", err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".index.json.%d.tmp", time.Now().UnixNano()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Wrap(apperr.KindIndexWriteError, "write temp account index", err)
	}
	if err := os.Rename(tmp, a.path(creator)); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.KindIndexWriteError, "rename account index into place", err)
	}
	return nil
}
