// Package transcriptstore implements C2: reading and writing per-video
// transcript artifacts, including sentence timings (spec.md §4.2).
package transcriptstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/models"
)

// TranscriptStore owns the on-disk layout for transcript artifacts
// under {creator}/transcriptions/ (spec.md §6.3). Sentences are kept
// as a lossless JSON sidecar next to the plain-text body, so parsing
// is exact for every artifact this store itself wrote.
type TranscriptStore struct {
	root string
}

// New builds a TranscriptStore rooted at ACCOUNTS_DIR.
func New(accountsDir string) *TranscriptStore {
	return &TranscriptStore{root: accountsDir}
}

func (t *TranscriptStore) textPath(creator, videoID string) string {
	return filepath.Join(t.root, creator, "transcriptions", videoID+"_transcript.txt")
}

func (t *TranscriptStore) sidecarPath(creator, videoID string) string {
	return filepath.Join(t.root, creator, "transcriptions", videoID+"_transcript.sentences.json")
}

// RelativePath returns the path recorded in ProcessedVideoRecord.TranscriptPath.
func (t *TranscriptStore) RelativePath(creator, videoID string) string {
	return filepath.Join(creator, "transcriptions", videoID+"_transcript.txt")
}

// Write persists a single text artifact plus its structured sentence
// list as a sidecar file, so parse is lossless.
func (t *TranscriptStore) Write(creator, videoID string, body string, sentences []models.Sentence) error {
	dir := filepath.Join(t.root, creator, "transcriptions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.KindCorruptTranscript, "create transcriptions directory", err)
	}

	if err := os.WriteFile(t.textPath(creator, videoID), []byte(body), 0o644); err != nil {
		return apperr.Wrap(apperr.KindCorruptTranscript, "write transcript body", err)
	}

	sidecar, err := json.MarshalIndent(sentences, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindCorruptTranscript, "marshal sentence sidecar", err)
	}
	if err := os.WriteFile(t.sidecarPath(creator, videoID), sidecar, 0o644); err != nil {
		return apperr.Wrap(apperr.KindCorruptTranscript, "write sentence sidecar", err)
	}
	return nil
}

// Read loads a transcript artifact, deriving sentences from the
// sidecar when present, or falling back to ParseSentences for legacy
// artifacts written before the sidecar existed.
func (t *TranscriptStore) Read(creator, videoID string) (models.TranscriptArtifact, error) {
	bodyRaw, err := os.ReadFile(t.textPath(creator, videoID))
	if os.IsNotExist(err) {
		return models.TranscriptArtifact{}, apperr.New(apperr.KindNotFound, fmt.Sprintf("transcript not found for %s/%s", creator, videoID))
	}
	if err != nil {
		return models.TranscriptArtifact{}, apperr.Wrap(apperr.KindCorruptTranscript, "read transcript body", err)
	}
	body := string(bodyRaw)

	var sentences []models.Sentence
	sidecarRaw, err := os.ReadFile(t.sidecarPath(creator, videoID))
	switch {
	case err == nil:
		if err := json.Unmarshal(sidecarRaw, &sentences); err != nil {
			return models.TranscriptArtifact{}, apperr.Wrap(apperr.KindCorruptTranscript, "parse sentence sidecar", err)
		}
	case os.IsNotExist(err):
		var duration float64
		if len(sentences) > 0 {
			duration = sentences[len(sentences)-1].EndSec
		}
		sentences = ParseSentences(body, duration)
	default:
		return models.TranscriptArtifact{}, apperr.Wrap(apperr.KindCorruptTranscript, "read sentence sidecar", err)
	}

	return models.TranscriptArtifact{
		VideoID:   videoID,
		Creator:   creator,
		Body:      body,
		Sentences: sentences,
	}, nil
}

var sentenceBoundary = regexp.MustCompile(`(?s)(.*?[.!?]+)(\s+|$)`)

// ParseSentences derives a Sentence[] from raw text by
// sentence-segmentation, distributing timings proportional to
// character counts over the total duration. Used only as a fallback
// for legacy artifacts that have no sidecar (spec.md §4.2, §9 Open
// Questions).
func ParseSentences(body string, totalDurationSec float64) []models.Sentence {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	var raw []string
	matches := sentenceBoundary.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		raw = []string{body}
	} else {
		for _, m := range matches {
			s := strings.TrimSpace(m[1])
			if s != "" {
				raw = append(raw, s)
			}
		}
	}
	if len(raw) == 0 {
		raw = []string{body}
	}

	totalChars := 0
	for _, s := range raw {
		totalChars += len(s)
	}
	if totalChars == 0 {
		totalChars = 1
	}

	sentences := make([]models.Sentence, 0, len(raw))
	var cursor float64
	for i, s := range raw {
		share := float64(len(s)) / float64(totalChars) * totalDurationSec
		start := cursor
		end := cursor + share
		if i == len(raw)-1 {
			end = totalDurationSec
		}
		sentences = append(sentences, models.Sentence{
			Index:    i,
			StartSec: start,
			EndSec:   end,
			Text:     s,
		})
		cursor = end
	}
	return sentences
}
