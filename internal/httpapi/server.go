// Package httpapi is the gin-based HTTP control plane implementing
// every endpoint in spec.md §6.2, grounded on the teacher pack's
// byron-the-bulb-cinema-chat cmd/main.go gin conventions (route
// groups, gin.H{} responses, corsMiddleware, gin.Recovery()).
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/videoindex/ingestor/internal/accountindex"
	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/category"
	"github.com/videoindex/ingestor/internal/jobmanager"
	"github.com/videoindex/ingestor/internal/ports"
	"github.com/videoindex/ingestor/internal/search"
	"github.com/videoindex/ingestor/internal/snapshot"
	"github.com/videoindex/ingestor/internal/transcriptstore"
	"github.com/videoindex/ingestor/internal/vectorindex"
)

// Server holds every collaborator a handler needs. Handlers are
// methods on Server so they share these without package-level
// globals (unlike the teacher's cmd/main.go, which keeps db/jobQueue
// as package vars - this module wires one Server per process instead).
type Server struct {
	accounts    *accountindex.AccountIndex
	transcripts *transcriptstore.TranscriptStore
	searchEngine *search.Engine
	classifier  *category.Classifier
	jobs        *jobmanager.Manager
	index       *vectorindex.Index
	platform    ports.VideoPlatform
	snapshots   *snapshot.Store
}

// New builds a Server around the already-wired application components.
func New(
	accounts *accountindex.AccountIndex,
	transcripts *transcriptstore.TranscriptStore,
	searchEngine *search.Engine,
	classifier *category.Classifier,
	jobs *jobmanager.Manager,
	index *vectorindex.Index,
	platform ports.VideoPlatform,
	snapshots *snapshot.Store,
) *Server {
	return &Server{
		accounts:     accounts,
		transcripts:  transcripts,
		searchEngine: searchEngine,
		classifier:   classifier,
		jobs:         jobs,
		index:        index,
		platform:     platform,
		snapshots:    snapshots,
	}
}

// Router builds the gin.Engine with every route from spec.md §6.2
// mounted under /api.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/accounts", s.listAccounts)
		api.GET("/accounts/:creator/tags", s.accountTags)
		api.GET("/accounts/:creator/category", s.accountCategory)
		api.GET("/accounts/:creator/tags/by-video", s.accountTagsByVideo)
		api.GET("/accounts/:creator/tags/video/:video_id", s.accountTagsForVideo)
		api.GET("/accounts/:creator/umbrellas", s.accountUmbrellas)

		api.POST("/search/semantic", s.searchSemantic)
		api.GET("/search/filter-options", s.searchFilterOptions)

		api.GET("/transcript/:creator/:video_id", s.getTranscript)

		api.POST("/ingest/start", s.ingestStart)
		api.GET("/ingest/metadata/:creator", s.ingestMetadataPreview)
		api.GET("/ingest/jobs", s.listJobs)
		api.GET("/ingest/status/:job_id", s.jobStatus)
		api.POST("/ingest/pause/:job_id", s.pauseJob)
		api.POST("/ingest/resume/:job_id", s.resumeJob)
		api.POST("/ingest/cancel/:job_id", s.cancelJob)

		api.GET("/verify/system", s.verifySystem)
		api.POST("/verify/system", s.verifySystem)
	}

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// respondError maps an apperr.Kind to its HTTP status, per
// spec.md §7's error taxonomy feeding directly into the control plane.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	if status == http.StatusOK {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
