// Package pipeline implements C8 IngestionPipeline: the per-video
// state machine and per-account commit ordering that ties every other
// component together (spec.md §4.8-4.9).
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/videoindex/ingestor/internal/accountindex"
	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/category"
	"github.com/videoindex/ingestor/internal/models"
	"github.com/videoindex/ingestor/internal/ports"
	"github.com/videoindex/ingestor/internal/search"
	"github.com/videoindex/ingestor/internal/topics"
	"github.com/videoindex/ingestor/internal/transcriptstore"
	"github.com/videoindex/ingestor/internal/umbrella"
)

// Config bundles the tunables from spec.md §6.4 relevant to the
// pipeline proper.
type Config struct {
	MinSpeechChars int
	TempDir        string
}

// Pipeline wires every collaborator needed to take a creator from a
// fresh ingest request through to a re-classified, re-clustered
// account.
type Pipeline struct {
	platform    ports.VideoPlatform
	transcriber ports.Transcriber
	embedder    ports.Embedder

	accounts     *accountindex.AccountIndex
	transcripts  *transcriptstore.TranscriptStore
	extractor    *topics.Extractor
	searchEngine *search.Engine
	classifier   *category.Classifier
	umbrellas    *umbrella.Builder
	authHook     AuthHook

	cfg Config
}

// New builds a Pipeline from its collaborators.
func New(
	platform ports.VideoPlatform,
	transcriber ports.Transcriber,
	embedder ports.Embedder,
	accounts *accountindex.AccountIndex,
	transcripts *transcriptstore.TranscriptStore,
	extractor *topics.Extractor,
	searchEngine *search.Engine,
	classifier *category.Classifier,
	umbrellas *umbrella.Builder,
	cfg Config,
) *Pipeline {
	if cfg.MinSpeechChars == 0 {
		cfg.MinSpeechChars = 50
	}
	return &Pipeline{
		platform:     platform,
		transcriber:  transcriber,
		embedder:     embedder,
		accounts:     accounts,
		transcripts:  transcripts,
		extractor:    extractor,
		searchEngine: searchEngine,
		classifier:   classifier,
		umbrellas:    umbrellas,
		cfg:          cfg,
	}
}

// ProgressHook lets callers (jobmanager) observe per-video transitions
// without the pipeline knowing anything about Job bookkeeping.
type ProgressHook func(update VideoUpdate)

// VideoUpdate is one per-video lifecycle event.
type VideoUpdate struct {
	VideoID models.VideoId
	Status  string // queued|fetching|downloading|transcribing|extracting_v1|extracting_v2|indexing|complete|skipped_no_speech|skipped_existing|failed
	Error   string
}

// SuspendCheck is polled between per-video suspension points so
// jobmanager's pause flag takes effect promptly (spec.md §4.9
// pause/resume/cancel semantics). It reports whether the job is
// paused; while it returns true, ProcessAccount itself waits, polling
// every 500ms. Cancellation is observed through ctx, not this check.
type SuspendCheck func() (paused bool)

// AuthHook resolves a best-effort per-creator auth cookie string,
// consulted only when the caller didn't already supply one (spec.md's
// authenticated-downloads supplement, modeled on the teacher's
// NexusAuthClient/AuthHook best-effort-if-configured pattern).
type AuthHook interface {
	CookiesFor(ctx context.Context, creator string) string
}

// SetAuthHook wires an optional auth-cookie resolver. Unset by
// default: authenticated downloads are never required.
func (p *Pipeline) SetAuthHook(h AuthHook) {
	p.authHook = h
}

// ProcessAccount runs the full per-creator ingestion: list, filter,
// then per-video state machine, then account-level re-classification
// and re-clustering. authCookies may be empty, in which case the
// configured AuthHook (if any) is consulted.
func (p *Pipeline) ProcessAccount(ctx context.Context, creator string, filters models.Filters, settings models.Settings, authCookies string, hook ProgressHook, suspend SuspendCheck) error {
	if authCookies == "" && p.authHook != nil {
		authCookies = p.authHook.CookiesFor(ctx, creator)
	}

	videos, err := p.platform.ListVideos(ctx, creator)
	if err != nil {
		return err
	}

	filtered := applyPreDownloadFilters(videos, filters)

	if settings.SkipExistingOrDefault() {
		filtered, err = p.accounts.FilterNew(creator, filtered)
		if err != nil {
			return err
		}
	}

	for _, video := range filtered {
		if err := ctx.Err(); err != nil {
			return err
		}
		for suspend != nil && suspend() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}

		p.processVideo(ctx, creator, video, settings, authCookies, hook)
	}

	return p.recomputeAccount(ctx, creator)
}

// processVideo runs one video through the state machine. Per-video
// failures are recorded in AccountIndex and do not abort the account
// (spec.md §4.8: "a single video's extraction failure must not fail
// the account run").
func (p *Pipeline) processVideo(ctx context.Context, creator string, video models.VideoMeta, settings models.Settings, authCookies string, hook ProgressHook) {
	emit := func(status, errMsg string) {
		if hook != nil {
			hook(VideoUpdate{VideoID: video.VideoID, Status: status, Error: errMsg})
		}
	}

	emit("fetching", "")

	if settings.MaxDurationMinutes > 0 && video.DurationS > settings.MaxDurationMinutes*60 {
		emit("skipped_existing", "")
		if err := p.accounts.MarkSkipped(creator); err != nil {
			log.Printf("account index mark-skipped failed for %s/%s: %v", creator, video.VideoID, err)
		}
		return
	}

	emit("downloading", "")
	audioPath, err := p.platform.DownloadAudio(ctx, video.URL, p.cfg.TempDir, authCookies)
	if err != nil {
		p.fail(creator, video, err, emit)
		return
	}

	emit("transcribing", "")
	tier := settings.WhisperMode
	if tier == "" {
		tier = models.WhisperBalanced
	}
	result, err := p.transcriber.Transcribe(ctx, audioPath, tier)
	if err != nil {
		p.fail(creator, video, err, emit)
		return
	}

	if len(strings.TrimSpace(result.Text)) < p.cfg.MinSpeechChars {
		emit("skipped_no_speech", "")
		if err := p.accounts.Commit(creator, models.ProcessedVideoRecord{
			VideoID:     video.VideoID,
			Title:       video.Title,
			DurationSec: video.DurationS,
			URL:         video.URL,
			UploadedAt:  video.UploadedAt,
			ProcessedAt: time.Now(),
			Success:     false,
			ErrorKind:   "skipped_no_speech",
		}); err != nil {
			log.Printf("account index commit failed for %s/%s: %v", creator, video.VideoID, err)
		}
		return
	}

	artifact := models.TranscriptArtifact{
		VideoID:    video.VideoID,
		Creator:    creator,
		Body:       result.Text,
		Sentences:  result.Sentences,
		Language:   result.Language,
		Confidence: result.Confidence,
	}
	if err := p.transcripts.Write(creator, video.VideoID, artifact.Body, artifact.Sentences); err != nil {
		p.fail(creator, video, err, emit)
		return
	}

	emit("extracting_v1", "")
	v1Topics := titleHashtagTopics(ctx, video, p.embedder)

	emit("extracting_v2", "")
	v2Topics, err := p.extractor.Extract(ctx, artifact)
	if err != nil {
		log.Printf("topic extraction failed for %s/%s: %v", creator, video.VideoID, err)
		v2Topics = nil
	}
	allTopics := append(v1Topics, v2Topics...)

	if err := p.transcripts.WriteTopics(creator, video.VideoID, allTopics); err != nil {
		log.Printf("topic persistence failed for %s/%s: %v", creator, video.VideoID, err)
	}

	emit("indexing", "")
	if _, err := p.searchEngine.IndexTranscript(ctx, artifact); err != nil {
		p.fail(creator, video, err, emit)
		return
	}

	avgConfidence := averageConfidence(allTopics)
	if err := p.accounts.Commit(creator, models.ProcessedVideoRecord{
		VideoID:               video.VideoID,
		Title:                 video.Title,
		DurationSec:           video.DurationS,
		URL:                   video.URL,
		UploadedAt:            video.UploadedAt,
		ProcessedAt:            time.Now(),
		Success:                true,
		TranscriptPath:         p.transcripts.RelativePath(creator, video.VideoID),
		TranscriptLengthChars:  len(result.Text),
		TopicConfidenceAvg:     avgConfidence,
	}); err != nil {
		p.fail(creator, video, err, emit)
		return
	}

	emit("complete", "")
}

func (p *Pipeline) fail(creator string, video models.VideoMeta, err error, emit func(status, errMsg string)) {
	kind := apperr.KindOf(err)
	emit("failed", err.Error())
	if commitErr := p.accounts.Commit(creator, models.ProcessedVideoRecord{
		VideoID:     video.VideoID,
		Title:       video.Title,
		DurationSec: video.DurationS,
		URL:         video.URL,
		UploadedAt:  video.UploadedAt,
		ProcessedAt: time.Now(),
		Success:     false,
		ErrorKind:   string(kind),
	}); commitErr != nil {
		log.Printf("account index commit (failure path) failed for %s/%s: %v", creator, video.VideoID, commitErr)
	}
}

// applyPreDownloadFilters narrows the candidate list by fields
// VideoMeta already carries (no download required): last_n_videos,
// history window (history_start/history_end as fractions of the
// newest-first list), date range (spec.md §4.9). required_category and
// required_tags are not applied, here or anywhere else in the pipeline.
func applyPreDownloadFilters(videos []models.VideoMeta, f models.Filters) []models.VideoMeta {
	sorted := make([]models.VideoMeta, len(videos))
	copy(sorted, videos)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UploadedAt.After(sorted[j].UploadedAt) })

	out := sorted
	if f.DateFrom != nil || f.DateTo != nil {
		var filtered []models.VideoMeta
		for _, v := range out {
			if f.DateFrom != nil && v.UploadedAt.Before(*f.DateFrom) {
				continue
			}
			if f.DateTo != nil && v.UploadedAt.After(*f.DateTo) {
				continue
			}
			filtered = append(filtered, v)
		}
		out = filtered
	}

	if f.HistoryStart > 0 || f.HistoryEnd > 0 {
		n := len(out)
		start := int(f.HistoryStart * float64(n))
		end := n
		if f.HistoryEnd > 0 && f.HistoryEnd < 1 {
			end = int(f.HistoryEnd * float64(n))
		}
		if start < 0 {
			start = 0
		}
		if start < end {
			out = out[start:end]
		} else {
			out = nil
		}
	}

	if f.LastNVideos > 0 && f.LastNVideos < len(out) {
		out = out[:f.LastNVideos]
	}

	return out
}

func averageConfidence(records []models.TopicRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += r.Confidence
	}
	return sum / float64(len(records))
}

// titleHashtagTopics is the cheap "v1" extraction pass: the video's
// normalised hashtags (title words are not used), each kept only if the
// embedder can encode it, with a fixed confidence since there is no MMR
// signal to derive one from. It is called only after transcription has
// succeeded, and its records are stored with the transcript-derived ones.
func titleHashtagTopics(ctx context.Context, video models.VideoMeta, embedder ports.Embedder) []models.TopicRecord {
	var surface []string
	seen := map[string]struct{}{}
	for _, tag := range video.Tags {
		norm := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		surface = append(surface, norm)
	}

	var records []models.TopicRecord
	for _, s := range surface {
		emb, err := embedder.Encode(ctx, s)
		if err != nil {
			continue
		}
		_ = emb
		records = append(records, models.TopicRecord{
			Tag:        s,
			Canonical:  s,
			ScoreMMR:   0.5,
			Confidence: 0.5,
			Evidence: []models.Evidence{{
				SentenceIndex: -1,
				StartSec:      0,
				EndSec:        0,
				Text:          fmt.Sprintf("%s (hashtag)", s),
			}},
			Source: models.TopicSourceHashtag,
			Stats:  models.TopicStats{DistinctSentences: 0, MMRScore: 0.5},
		})
	}
	return records
}

// recomputeAccount re-runs CategoryClassifier and UmbrellaBuilder over
// the full set of an account's persisted topics, the step spec.md
// §4.8 calls for after every account run completes.
func (p *Pipeline) recomputeAccount(ctx context.Context, creator string) error {
	index, err := p.accounts.Load(creator)
	if err != nil {
		return err
	}

	perVideo := map[string][]models.TopicRecord{}
	for videoID, rec := range index.ProcessedVideos {
		if !rec.Success {
			continue
		}
		records, err := p.transcripts.ReadTopics(creator, videoID)
		if err != nil {
			continue
		}
		perVideo[videoID] = records
	}
	if len(perVideo) == 0 {
		return nil
	}

	aggregates := topics.Aggregate(perVideo)

	topicEmbeddings := map[string][]float32{}
	for _, records := range perVideo {
		for _, r := range records {
			if _, ok := topicEmbeddings[r.Canonical]; ok {
				continue
			}
			emb, err := p.embedder.Encode(ctx, r.Canonical)
			if err != nil {
				continue
			}
			topicEmbeddings[r.Canonical] = emb
		}
	}

	umbrellaTopics := make([]umbrella.Topic, 0, len(aggregates))
	for _, agg := range aggregates {
		emb, ok := topicEmbeddings[agg.Canonical]
		if !ok {
			continue
		}
		umbrellaTopics = append(umbrellaTopics, umbrella.Topic{
			Canonical: agg.Canonical,
			Embedding: emb,
			Frequency: agg.Frequency,
			VideoIDs:  agg.VideoIDs,
		})
	}
	umbrellaFile := p.umbrellas.Build(umbrellaTopics)
	if err := p.transcripts.WriteUmbrellas(creator, umbrellaFile); err != nil {
		return err
	}

	assignment, err := p.classifier.Classify(ctx, 10, aggregates, topicEmbeddings, nil)
	if err != nil {
		return err
	}
	if err := p.transcripts.WriteCategory(creator, assignment); err != nil {
		return err
	}
	if err := p.transcripts.WriteAggregates(creator, aggregates); err != nil {
		return err
	}

	return nil
}
