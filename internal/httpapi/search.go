package httpapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/config"
	"github.com/videoindex/ingestor/internal/models"
	"github.com/videoindex/ingestor/internal/search"
)

// metadataLookup adapts accountindex + transcriptstore into the
// search.MetadataLookup callback the engine needs to evaluate
// category/tags/date filters that the vector index itself doesn't carry.
func (s *Server) metadataLookup(creator, videoID string) (search.VideoMetadata, bool) {
	file, err := s.accounts.Load(creator)
	if err != nil {
		return search.VideoMetadata{}, false
	}
	rec, ok := file.ProcessedVideos[videoID]
	if !ok || !rec.Success {
		return search.VideoMetadata{}, false
	}

	meta := search.VideoMetadata{UploadedAt: rec.UploadedAt}
	if assignment, err := s.transcripts.ReadCategory(creator); err == nil {
		meta.Category = assignment.Category
	}
	if records, err := s.transcripts.ReadTopics(creator, videoID); err == nil {
		for _, r := range records {
			meta.Tags = append(meta.Tags, r.Canonical)
		}
	}
	return meta, true
}

// searchSemantic implements POST /api/search/semantic.
func (s *Server) searchSemantic(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid search request", "details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(c, apperr.New(apperr.KindValidationError, "query is required"))
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	results, err := s.searchEngine.Search(c.Request.Context(), search.Request{
		Query:   req.Query,
		TopK:    topK,
		Filters: req.Filters,
		Sort:    req.Sort,
	}, s.metadataLookup)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// searchFilterOptions implements GET /api/search/filter-options.
func (s *Server) searchFilterOptions(c *gin.Context) {
	creators, err := s.accounts.ListCreators()
	if err != nil {
		respondError(c, err)
		return
	}

	categorySet := config.CategorySet()
	categories := make([]string, 0, len(categorySet))
	for _, cat := range categorySet {
		categories = append(categories, cat.Name)
	}

	tagSet := map[string]struct{}{}
	for _, creator := range creators {
		aggregates, err := s.transcripts.ReadAggregates(creator)
		if err != nil {
			continue
		}
		for _, a := range aggregates {
			tagSet[a.Canonical] = struct{}{}
		}
	}
	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	c.JSON(http.StatusOK, gin.H{
		"creators":   creators,
		"categories": categories,
		"tags":       tags,
	})
}

// getTranscript implements GET /api/transcript/{creator}/{video_id}?query=&highlights=.
func (s *Server) getTranscript(c *gin.Context) {
	creator := c.Param("creator")
	videoID := c.Param("video_id")

	artifact, err := s.transcripts.Read(creator, videoID)
	if err != nil {
		respondError(c, err)
		return
	}

	segments := make([]models.TranscriptSegmentView, len(artifact.Sentences))
	for i, sent := range artifact.Sentences {
		segments[i] = models.TranscriptSegmentView{
			Index:     sent.Index,
			StartSec:  sent.StartSec,
			EndSec:    sent.EndSec,
			Timestamp: formatTimestamp(sent.StartSec),
			Text:      sent.Text,
		}
	}

	if query := c.Query("query"); query != "" {
		flags, err := s.searchEngine.Highlight(c.Request.Context(), query, artifact.Sentences)
		if err != nil {
			respondError(c, err)
			return
		}
		for i := range segments {
			if i < len(flags) && flags[i] {
				segments[i].Highlighted = true
			}
		}
	}

	if raw := c.Query("highlights"); raw != "" {
		marks := parseHighlightMarks(raw)
		for i := range segments {
			for _, mark := range marks {
				if segments[i].EndSec >= mark-5 && segments[i].StartSec <= mark+5 {
					segments[i].Highlighted = true
					break
				}
			}
		}
	}

	highlightedCount := 0
	for _, seg := range segments {
		if seg.Highlighted {
			highlightedCount++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"segments":          segments,
		"total_segments":    len(segments),
		"highlighted_count": highlightedCount,
	})
}

func parseHighlightMarks(raw string) []float64 {
	parts := strings.Split(raw, ",")
	marks := make([]float64, 0, len(parts))
	for _, p := range parts {
		if sec, ok := parseTimestamp(strings.TrimSpace(p)); ok {
			marks = append(marks, sec)
		}
	}
	return marks
}

// parseTimestamp parses MM:SS or H:MM:SS into seconds.
func parseTimestamp(s string) (float64, bool) {
	fields := strings.Split(s, ":")
	if len(fields) != 2 && len(fields) != 3 {
		return 0, false
	}
	nums := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return 0, false
		}
		nums[i] = n
	}
	var total int
	for _, n := range nums {
		total = total*60 + n
	}
	return float64(total), true
}

// formatTimestamp mirrors search.Engine's internal formatter (duplicated
// per the teacher's small-package-local-helper convention).
func formatTimestamp(seconds float64) string {
	total := int(seconds + 0.5)
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return strconv.Itoa(h) + ":" + pad2(m) + ":" + pad2(sec)
	}
	return pad2(m) + ":" + pad2(sec)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
