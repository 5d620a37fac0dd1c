// Package maintenance implements spec.md §4.6's
// rebuild_from_transcripts operation, shared by the server's nightly
// scheduler trigger and the standalone reindex CLI.
package maintenance

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/videoindex/ingestor/internal/accountindex"
	"github.com/videoindex/ingestor/internal/models"
	"github.com/videoindex/ingestor/internal/search"
	"github.com/videoindex/ingestor/internal/transcriptstore"
	"github.com/videoindex/ingestor/internal/vectorindex"
)

// RebuildVectorIndex re-chunks and re-embeds every successfully
// processed video's persisted transcript, then replaces the vector
// index's contents wholesale with fresh sequential segment ids.
// Creators and videos are visited in sorted order so two runs over the
// same on-disk state produce byte-identical segment ids.
func RebuildVectorIndex(ctx context.Context, accounts *accountindex.AccountIndex, transcripts *transcriptstore.TranscriptStore, searchEngine *search.Engine, vectorIndex *vectorindex.Index) (int, error) {
	creators, err := accounts.ListCreators()
	if err != nil {
		return 0, fmt.Errorf("list creators: %w", err)
	}

	var all []models.IndexSegment
	for _, creator := range creators {
		file, err := accounts.Load(creator)
		if err != nil {
			log.Printf("rebuild: failed to load %s: %v", creator, err)
			continue
		}

		videoIDs := make([]string, 0, len(file.ProcessedVideos))
		for videoID, rec := range file.ProcessedVideos {
			if rec.Success {
				videoIDs = append(videoIDs, videoID)
			}
		}
		sort.Strings(videoIDs)

		for _, videoID := range videoIDs {
			artifact, err := transcripts.Read(creator, videoID)
			if err != nil {
				log.Printf("rebuild: failed to read transcript %s/%s: %v", creator, videoID, err)
				continue
			}
			segments, err := searchEngine.BuildSegments(ctx, artifact)
			if err != nil {
				log.Printf("rebuild: failed to embed %s/%s: %v", creator, videoID, err)
				continue
			}
			all = append(all, segments...)
		}
	}

	if err := vectorIndex.Rebuild(all); err != nil {
		return 0, fmt.Errorf("rebuild vector index: %w", err)
	}
	return len(all), nil
}
