package httpapi

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/models"
)

type accountSummary struct {
	Creator        string   `json:"creator"`
	Category       string   `json:"category,omitempty"`
	VideoCount     int      `json:"video_count"`
	LastUpdated    string   `json:"last_updated"`
	TopTopics      []string `json:"top_topics"`
	HasTranscripts bool     `json:"has_transcripts"`
	HasTags        bool     `json:"has_tags"`
	HasCategory    bool     `json:"has_category"`
}

// listAccounts implements GET /api/accounts.
func (s *Server) listAccounts(c *gin.Context) {
	creators, err := s.accounts.ListCreators()
	if err != nil {
		respondError(c, err)
		return
	}

	summaries := make([]accountSummary, 0, len(creators))
	for _, creator := range creators {
		file, err := s.accounts.Load(creator)
		if err != nil {
			respondError(c, err)
			return
		}

		summary := accountSummary{
			Creator:        creator,
			VideoCount:     file.Stats.Processed,
			LastUpdated:    file.LastUpdated.Format("2006-01-02T15:04:05Z07:00"),
			HasTranscripts: file.Stats.Processed > 0,
			HasTags:        s.transcripts.HasAggregates(creator),
			HasCategory:    s.transcripts.HasCategory(creator),
		}

		if assignment, err := s.transcripts.ReadCategory(creator); err == nil {
			summary.Category = assignment.Category
		}
		if aggregates, err := s.transcripts.ReadAggregates(creator); err == nil {
			summary.TopTopics = topTopicNames(aggregates, 5)
		}

		summaries = append(summaries, summary)
	}

	c.JSON(http.StatusOK, summaries)
}

func topTopicNames(aggregates []models.AccountTagAggregate, n int) []string {
	ranked := make([]models.AccountTagAggregate, len(aggregates))
	copy(ranked, aggregates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CombinedScore > ranked[j].CombinedScore
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	names := make([]string, 0, len(ranked))
	for _, r := range ranked {
		names = append(names, r.Canonical)
	}
	return names
}

// accountTags implements GET /api/accounts/{creator}/tags?top_n&min_frequency.
func (s *Server) accountTags(c *gin.Context) {
	creator := c.Param("creator")
	aggregates, err := s.transcripts.ReadAggregates(creator)
	if err != nil {
		respondError(c, err)
		return
	}

	minFrequency := 0
	if raw := c.Query("min_frequency"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			minFrequency = v
		}
	}

	filtered := make([]models.AccountTagAggregate, 0, len(aggregates))
	for _, a := range aggregates {
		if a.Frequency >= minFrequency {
			filtered = append(filtered, a)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CombinedScore > filtered[j].CombinedScore
	})

	if raw := c.Query("top_n"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 && n < len(filtered) {
			filtered = filtered[:n]
		}
	}

	c.JSON(http.StatusOK, filtered)
}

// accountCategory implements GET /api/accounts/{creator}/category.
func (s *Server) accountCategory(c *gin.Context) {
	creator := c.Param("creator")
	assignment, err := s.transcripts.ReadCategory(creator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

// accountTagsByVideo implements GET /api/accounts/{creator}/tags/by-video.
func (s *Server) accountTagsByVideo(c *gin.Context) {
	creator := c.Param("creator")
	file, err := s.accounts.Load(creator)
	if err != nil {
		respondError(c, err)
		return
	}

	videoIDs := make([]string, 0, len(file.ProcessedVideos))
	for id, rec := range file.ProcessedVideos {
		if rec.Success {
			videoIDs = append(videoIDs, id)
		}
	}
	sort.Strings(videoIDs)

	if len(videoIDs) == 0 {
		respondError(c, apperr.New(apperr.KindNotFound, "tags not found"))
		return
	}

	out := make(map[string][]models.TopicRecord, len(videoIDs))
	for _, id := range videoIDs {
		records, err := s.transcripts.ReadTopics(creator, id)
		if err != nil {
			continue
		}
		out[id] = records
	}
	c.JSON(http.StatusOK, out)
}

// accountTagsForVideo implements GET /api/accounts/{creator}/tags/video/{video_id}.
func (s *Server) accountTagsForVideo(c *gin.Context) {
	creator := c.Param("creator")
	videoID := c.Param("video_id")
	records, err := s.transcripts.ReadTopics(creator, videoID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// accountUmbrellas implements GET /api/accounts/{creator}/umbrellas.
func (s *Server) accountUmbrellas(c *gin.Context) {
	creator := c.Param("creator")
	file, err := s.transcripts.ReadUmbrellas(creator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, file.Umbrellas)
}
