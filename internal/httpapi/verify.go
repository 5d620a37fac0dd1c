package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/videoindex/ingestor/internal/models"
)

// verifySystem implements GET+POST /api/verify/system: a cheap
// cross-check between the file-based stores and, when configured, the
// Postgres snapshot mirror (spec.md §6.2, §4.6 rebuild_from_transcripts).
func (s *Server) verifySystem(c *gin.Context) {
	creators, err := s.accounts.ListCreators()
	if err != nil {
		c.JSON(http.StatusOK, models.SystemHealth{
			Status:    "error",
			Timestamp: time.Now().UTC(),
		})
		return
	}

	totalTranscripts := 0
	for _, creator := range creators {
		file, err := s.accounts.Load(creator)
		if err != nil {
			continue
		}
		totalTranscripts += file.Stats.Processed
	}

	totalVectors := s.index.Size()

	status := "warning"
	if len(creators) > 0 && totalVectors > 0 {
		status = "healthy"
	}

	if s.snapshots != nil {
		mirrored, err := s.snapshots.SegmentCount()
		switch {
		case err != nil:
			status = "error"
		case int(mirrored) != totalVectors:
			status = "warning"
		}
	}

	c.JSON(http.StatusOK, models.SystemHealth{
		TotalCreators:    len(creators),
		TotalTranscripts: totalTranscripts,
		TotalVectors:     totalVectors,
		Status:           status,
		Timestamp:        time.Now().UTC(),
	})
}
