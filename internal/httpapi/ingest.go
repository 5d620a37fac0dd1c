package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/models"
)

// normalizeCreator lowercases and strips a leading '@', per
// models.CreatorHandle's documented normal form.
func normalizeCreator(raw string) string {
	handle := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimPrefix(handle, "@")
}

// ingestStart implements POST /api/ingest/start.
func (s *Server) ingestStart(c *gin.Context) {
	var req models.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ingest request", "details": err.Error()})
		return
	}
	if len(req.Usernames) == 0 {
		respondError(c, apperr.New(apperr.KindValidationError, "usernames must not be empty"))
		return
	}

	creators := make([]string, 0, len(req.Usernames))
	for _, u := range req.Usernames {
		if n := normalizeCreator(u); n != "" {
			creators = append(creators, n)
		}
	}

	jobID, err := s.jobs.Start(creators, req.Filters, req.Settings, "")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": string(models.JobQueued)})
}

// ingestMetadataPreview implements GET /api/ingest/metadata/{creator}:
// a read-only preview of what a job would find, no side effects.
func (s *Server) ingestMetadataPreview(c *gin.Context) {
	creator := normalizeCreator(c.Param("creator"))
	videos, err := s.platform.ListVideos(c.Request.Context(), creator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, videos)
}

// listJobs implements GET /api/ingest/jobs.
func (s *Server) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, s.jobs.List())
}

// jobStatus implements GET /api/ingest/status/{job_id}.
func (s *Server) jobStatus(c *gin.Context) {
	job, err := s.jobs.Get(c.Param("job_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// pauseJob implements POST /api/ingest/pause/{job_id}.
func (s *Server) pauseJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if err := s.jobs.Pause(jobID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(models.JobPaused)})
}

// resumeJob implements POST /api/ingest/resume/{job_id}.
func (s *Server) resumeJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if err := s.jobs.Resume(jobID); err != nil {
		respondError(c, err)
		return
	}
	job, err := s.jobs.Get(jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(job.Status)})
}

// cancelJob implements POST /api/ingest/cancel/{job_id}.
func (s *Server) cancelJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if err := s.jobs.Cancel(jobID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(models.JobCancelled)})
}
