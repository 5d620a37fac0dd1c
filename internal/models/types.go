// Package models holds the wire/storage data model shared across the
// ingestion pipeline, the knowledge index and the HTTP control plane.
package models

import "time"

// VideoId is opaque and unique within a creator.
type VideoId = string

// CreatorHandle is normalised lowercase, leading '@' stripped.
type CreatorHandle = string

// VideoMeta is what the video-platform port returns for list_videos.
type VideoMeta struct {
	VideoID    VideoId   `json:"video_id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
	DurationS  float64   `json:"duration_sec"`
	Tags       []string  `json:"tags,omitempty"`
}

// Sentence is one timed unit of a transcript.
type Sentence struct {
	Index    int     `json:"index"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
}

// TranscriptArtifact is the body + timing owned by TranscriptStore.
type TranscriptArtifact struct {
	VideoID    VideoId       `json:"video_id"`
	Creator    CreatorHandle `json:"creator"`
	Body       string        `json:"body"`
	Sentences  []Sentence    `json:"sentences"`
	Language   string        `json:"language,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
}

// ProcessedVideoRecord is owned by AccountIndex; at most one per video_id.
type ProcessedVideoRecord struct {
	VideoID               VideoId   `json:"video_id"`
	Title                 string    `json:"title"`
	DurationSec           float64   `json:"duration_sec"`
	URL                   string    `json:"url"`
	UploadedAt            time.Time `json:"uploaded_at"`
	ProcessedAt           time.Time `json:"processed_at"`
	Success               bool      `json:"success"`
	TranscriptPath        string    `json:"transcript_path,omitempty"`
	TranscriptLengthChars int       `json:"transcript_length_chars,omitempty"`
	ErrorKind             string    `json:"error_kind,omitempty"`
	TopicConfidenceAvg    float64   `json:"topic_confidence_avg,omitempty"`
}

// AccountStats is the aggregate counters kept alongside processed_videos.
type AccountStats struct {
	TotalFound int       `json:"total_found"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	LastRunAt  time.Time `json:"last_run_at"`
}

// AccountIndexFile is one per creator, the AccountIndex source of truth.
type AccountIndexFile struct {
	Creator         CreatorHandle                     `json:"creator"`
	CreatedAt       time.Time                         `json:"created_at"`
	LastUpdated     time.Time                         `json:"last_updated"`
	ProcessedVideos map[VideoId]ProcessedVideoRecord  `json:"processed_videos"`
	Stats           AccountStats                      `json:"stats"`
}

// Evidence is the sentence-level justification behind a TopicRecord.
type Evidence struct {
	SentenceIndex int     `json:"sentence_index"`
	StartSec      float64 `json:"start_sec"`
	EndSec        float64 `json:"end_sec"`
	Text          string  `json:"text"`
}

// TopicSource identifies where a raw topic surfaced from.
type TopicSource string

const (
	TopicSourceTranscript TopicSource = "transcript"
	TopicSourceTitle      TopicSource = "title"
	TopicSourceHashtag    TopicSource = "hashtag"
)

// TopicStats carries the raw selection signals behind a TopicRecord.
type TopicStats struct {
	DistinctSentences int     `json:"distinct_sentences"`
	MMRScore          float64 `json:"mmr_score"`
}

// TopicRecord is one per-video extracted topic (V2 artifact entry).
type TopicRecord struct {
	Tag        string      `json:"tag"`
	Canonical  string      `json:"canonical"`
	ScoreMMR   float64     `json:"score_mmr"`
	Confidence float64     `json:"confidence"`
	Evidence   []Evidence  `json:"evidence"`
	Source     TopicSource `json:"source"`
	Stats      TopicStats  `json:"stats"`
}

// AccountTagAggregate rolls TopicRecords up across every processed video.
type AccountTagAggregate struct {
	Canonical     string    `json:"canonical"`
	Frequency     int       `json:"frequency"`
	AvgScore      float64   `json:"avg_score"`
	CombinedScore float64   `json:"combined_score"`
	VideoIDs      []VideoId `json:"video_ids"`
}

// CategoryAssignment is the closed-set classification of a creator.
type CategoryAssignment struct {
	Category   string             `json:"category"`
	Confidence float64            `json:"confidence"`
	AllScores  map[string]float64 `json:"all_scores"`
}

// UmbrellaCluster is one community-detected topic cluster.
type UmbrellaCluster struct {
	ID             string    `json:"id"`
	Label          string    `json:"label"`
	Members        []string  `json:"members"`
	MemberCount    int       `json:"member_count"`
	TotalFrequency int       `json:"total_frequency"`
	AvgCoherence   float64   `json:"avg_coherence"`
	VideoIDs       []VideoId `json:"video_ids"`
}

// UmbrellaFile is the on-disk wrapper recording the method used.
type UmbrellaFile struct {
	Umbrellas []UmbrellaCluster `json:"umbrellas"`
	Threshold float64           `json:"threshold"`
	Method    string            `json:"method"`
}

// IndexSegment is one embeddable unit of a transcript, the atomic unit
// of VectorIndex. SegmentID is the row's positional index in the log.
type IndexSegment struct {
	SegmentID  int64         `json:"segment_id"`
	Creator    CreatorHandle `json:"creator"`
	VideoID    VideoId       `json:"video_id"`
	StartSec   float64       `json:"start_sec"`
	EndSec     float64       `json:"end_sec"`
	Text       string        `json:"text"`
	IngestedAt time.Time     `json:"ingested_at"`
	Embedding  []float32     `json:"-"`
}

// JobStatus enumerates the lifecycle states of a Job.
type JobStatus string

const (
	JobQueued           JobStatus = "queued"
	JobFetchingMetadata JobStatus = "fetching_metadata"
	JobFiltering        JobStatus = "filtering"
	JobDownloading      JobStatus = "downloading"
	JobTranscribing     JobStatus = "transcribing"
	JobExtractingTopics JobStatus = "extracting_topics"
	JobEmbedding        JobStatus = "embedding"
	JobComplete         JobStatus = "complete"
	JobFailed           JobStatus = "failed"
	JobPaused           JobStatus = "paused"
	JobCancelled        JobStatus = "cancelled"
)

// VideoProgress tracks one video's journey through the pipeline.
type VideoProgress struct {
	VideoID     VideoId    `json:"video_id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Step        string     `json:"step,omitempty"`
	ProgressPct float64    `json:"progress_pct"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AccountProgress tracks one creator within a Job.
type AccountProgress struct {
	Creator       CreatorHandle   `json:"creator"`
	Status        string          `json:"status"`
	TotalFound    int             `json:"total_found"`
	FilteredCount int             `json:"filtered_count"`
	Processed     int             `json:"processed"`
	Skipped       int             `json:"skipped"`
	Failed        int             `json:"failed"`
	CurrentVideo  string          `json:"current_video,omitempty"`
	Videos        []VideoProgress `json:"videos"`
}

// Filters is applied before/after download per spec.md §4.9.
type Filters struct {
	LastNVideos      int        `json:"last_n_videos,omitempty"`
	HistoryStart     float64    `json:"history_start,omitempty"`
	HistoryEnd       float64    `json:"history_end,omitempty"`
	DateFrom         *time.Time `json:"date_from,omitempty"`
	DateTo           *time.Time `json:"date_to,omitempty"`
	RequiredCategory string     `json:"required_category,omitempty"`
	RequiredTags     []string   `json:"required_tags,omitempty"`
	OnlyWithSpeech   bool       `json:"only_with_speech,omitempty"`
	SkipNoSpeech     bool       `json:"skip_no_speech,omitempty"`
}

// WhisperMode is the transcription capacity tier (maps to the
// transcriber port's capacity_tier parameter).
type WhisperMode string

const (
	WhisperFast     WhisperMode = "fast"
	WhisperBalanced WhisperMode = "balanced"
	WhisperAccurate WhisperMode = "accurate"
	WhisperUltra    WhisperMode = "ultra"
)

// Settings is the per-job settings map from spec.md §4.9.
type Settings struct {
	WhisperMode               WhisperMode `json:"whisper_mode,omitempty"`
	SkipExisting              *bool       `json:"skip_existing,omitempty"`
	RetranscribeLowConfidence bool        `json:"retranscribe_low_confidence,omitempty"`
	MaxDurationMinutes        float64     `json:"max_duration_minutes,omitempty"`
	VideoConcurrency          int         `json:"video_concurrency,omitempty"`
}

// SkipExistingOrDefault returns the effective skip_existing value
// (default true).
func (s Settings) SkipExistingOrDefault() bool {
	if s.SkipExisting == nil {
		return true
	}
	return *s.SkipExisting
}

// Job is the control-plane unit of work spanning one or more creators.
type Job struct {
	JobID       string            `json:"job_id"`
	Creators    []CreatorHandle   `json:"creators"`
	Filters     Filters           `json:"filters"`
	Settings    Settings          `json:"settings"`
	Status      JobStatus         `json:"status"`
	Accounts    []AccountProgress `json:"accounts"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// OverallProgress implements processed/filtered_count*100, 0 if denom 0.
func (j *Job) OverallProgress() float64 {
	var processed, filtered int
	for _, a := range j.Accounts {
		processed += a.Processed
		filtered += a.FilteredCount
	}
	if filtered == 0 {
		return 0
	}
	return float64(processed) / float64(filtered) * 100
}

// IngestRequest is the validated POST /api/ingest/start body.
type IngestRequest struct {
	Usernames []string `json:"usernames"`
	Filters   Filters  `json:"filters"`
	Settings  Settings `json:"settings"`
}

// SearchFilters narrows a semantic search, §4.7.
type SearchFilters struct {
	MinScore        float64    `json:"min_score,omitempty"`
	IncludeCreators []string   `json:"include_creators,omitempty"`
	ExcludeCreators []string   `json:"exclude_creators,omitempty"`
	Category        string     `json:"category,omitempty"`
	RequiredTags    []string   `json:"required_tags,omitempty"`
	DateFrom        *time.Time `json:"date_from,omitempty"`
	DateTo          *time.Time `json:"date_to,omitempty"`
}

// SearchSort selects the ranking order for semantic search.
type SearchSort string

const (
	SortRelevance SearchSort = "relevance"
	SortRecency   SearchSort = "recency"
	SortTimestamp SearchSort = "timestamp"
)

// SearchRequest is the validated POST /api/search/semantic body.
type SearchRequest struct {
	Query   string        `json:"query"`
	TopK    int           `json:"top_k,omitempty"`
	Filters SearchFilters `json:"filters,omitempty"`
	Sort    SearchSort    `json:"sort,omitempty"`
}

// SearchResult is one ranked, snippeted hit.
type SearchResult struct {
	Creator    CreatorHandle `json:"creator"`
	VideoID    VideoId       `json:"video_id"`
	Score      float64       `json:"score"`
	StartSec   float64       `json:"start_sec"`
	EndSec     float64       `json:"end_sec"`
	Timestamp  string        `json:"timestamp"`
	Snippet    string        `json:"snippet"`
	IngestedAt time.Time     `json:"ingested_at"`
}

// TranscriptSegmentView is one §4.7/§6.2 transcript-read row.
type TranscriptSegmentView struct {
	Index       int     `json:"index"`
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
	Timestamp   string  `json:"timestamp"`
	Text        string  `json:"text"`
	Highlighted bool    `json:"highlighted,omitempty"`
}

// SystemHealth is the GET/POST /api/verify/system response.
type SystemHealth struct {
	TotalCreators    int       `json:"total_creators"`
	TotalTranscripts int       `json:"total_transcripts"`
	TotalVectors     int       `json:"total_vectors"`
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
}
