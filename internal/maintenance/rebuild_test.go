package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/videoindex/ingestor/internal/accountindex"
	"github.com/videoindex/ingestor/internal/clients"
	"github.com/videoindex/ingestor/internal/models"
	"github.com/videoindex/ingestor/internal/search"
	"github.com/videoindex/ingestor/internal/transcriptstore"
	"github.com/videoindex/ingestor/internal/vectorindex"
)

const testDimension = 4

// fakeEmbedder returns a deterministic vector derived from the text's
// length so segments for distinct sentences don't collide.
type fakeEmbedder struct{}

func (fakeEmbedder) Dimension() int { return testDimension }

func (f fakeEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (fakeEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, testDimension)
		v[0] = float32(len(t)) + float32(i)
		v[1] = 1
		out[i] = v
	}
	return out, nil
}

func setup(t *testing.T) (*accountindex.AccountIndex, *transcriptstore.TranscriptStore, *search.Engine, *vectorindex.Index) {
	t.Helper()
	dir := t.TempDir()

	accounts := accountindex.New(dir)
	transcripts := transcriptstore.New(dir)

	ann := clients.NewFlatANN(testDimension)
	vi, err := vectorindex.Open(dir+"/vector_index", testDimension, ann)
	if err != nil {
		t.Fatalf("open vector index: %v", err)
	}
	engine := search.New(fakeEmbedder{}, vi, search.Config{})
	return accounts, transcripts, engine, vi
}

func seedCreator(t *testing.T, accounts *accountindex.AccountIndex, transcripts *transcriptstore.TranscriptStore, creator, videoID string) {
	t.Helper()
	sentences := []models.Sentence{
		{Text: "hello world.", StartSec: 0, EndSec: 1},
		{Text: "this is a transcript.", StartSec: 1, EndSec: 2},
	}
	if err := transcripts.Write(creator, videoID, "hello world. this is a transcript.", sentences); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	rec := models.ProcessedVideoRecord{
		VideoID:     videoID,
		Success:     true,
		ProcessedAt: time.Now().UTC(),
	}
	if err := accounts.Commit(creator, rec); err != nil {
		t.Fatalf("commit record: %v", err)
	}
}

func TestRebuildVectorIndexPopulatesFromPersistedTranscripts(t *testing.T) {
	accounts, transcripts, engine, vi := setup(t)
	seedCreator(t, accounts, transcripts, "creatorA", "vid1")
	seedCreator(t, accounts, transcripts, "creatorB", "vid2")

	count, err := RebuildVectorIndex(context.Background(), accounts, transcripts, engine, vi)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if count == 0 {
		t.Fatalf("expected segments to be rebuilt, got 0")
	}
	if vi.Size() != count {
		t.Fatalf("index size %d does not match reported count %d", vi.Size(), count)
	}
}

func TestRebuildVectorIndexIsDeterministicAcrossRuns(t *testing.T) {
	accounts, transcripts, engine, vi := setup(t)
	seedCreator(t, accounts, transcripts, "creatorA", "vid1")
	seedCreator(t, accounts, transcripts, "creatorB", "vid2")
	seedCreator(t, accounts, transcripts, "creatorA", "vid3")

	ctx := context.Background()
	count1, err := RebuildVectorIndex(ctx, accounts, transcripts, engine, vi)
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	first := vi.Metadata()

	count2, err := RebuildVectorIndex(ctx, accounts, transcripts, engine, vi)
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	second := vi.Metadata()

	if count1 != count2 {
		t.Fatalf("segment counts differ across runs: %d vs %d", count1, count2)
	}
	if len(first) != len(second) {
		t.Fatalf("metadata length differs across runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Creator != second[i].Creator || first[i].VideoID != second[i].VideoID || first[i].Text != second[i].Text {
			t.Fatalf("segment %d differs across runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestRebuildVectorIndexSkipsUnsuccessfulVideos(t *testing.T) {
	accounts, transcripts, engine, vi := setup(t)
	seedCreator(t, accounts, transcripts, "creatorA", "vid1")

	if err := accounts.Commit("creatorA", models.ProcessedVideoRecord{
		VideoID:     "vid-failed",
		Success:     false,
		ProcessedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("commit failed record: %v", err)
	}

	count, err := RebuildVectorIndex(context.Background(), accounts, transcripts, engine, vi)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	for _, seg := range vi.Metadata() {
		if seg.VideoID == "vid-failed" {
			t.Fatalf("rebuild indexed a video marked unsuccessful")
		}
	}
	if count == 0 {
		t.Fatalf("expected at least the successful video's segments")
	}
}

func TestRebuildVectorIndexWithNoCreatorsYieldsEmptyIndex(t *testing.T) {
	accounts, transcripts, engine, vi := setup(t)

	count, err := RebuildVectorIndex(context.Background(), accounts, transcripts, engine, vi)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 segments, got %d", count)
	}
	if vi.Size() != 0 {
		t.Fatalf("expected empty index, got size %d", vi.Size())
	}
}
