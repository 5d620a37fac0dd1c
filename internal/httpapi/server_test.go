package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/videoindex/ingestor/internal/accountindex"
	"github.com/videoindex/ingestor/internal/clients"
	"github.com/videoindex/ingestor/internal/models"
	"github.com/videoindex/ingestor/internal/search"
	"github.com/videoindex/ingestor/internal/transcriptstore"
	"github.com/videoindex/ingestor/internal/vectorindex"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *accountindex.AccountIndex, *transcriptstore.TranscriptStore) {
	t.Helper()
	dir := t.TempDir()
	accounts := accountindex.New(dir)
	transcripts := transcriptstore.New(dir)

	ann := clients.NewFlatANN(4)
	vi, err := vectorindex.Open(dir+"/vector_index", 4, ann)
	if err != nil {
		t.Fatalf("open vector index: %v", err)
	}
	engine := search.New(stubEmbedder{}, vi, search.Config{})

	server := New(accounts, transcripts, engine, nil, nil, vi, nil, nil)
	return server, accounts, transcripts
}

type stubEmbedder struct{}

func (stubEmbedder) Dimension() int { return 4 }

func (stubEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (stubEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListAccountsEmpty(t *testing.T) {
	server, _, _ := newTestServer(t)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var summaries []accountSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("expected no accounts, got %d", len(summaries))
	}
}

func TestListAccountsReflectsCommittedVideo(t *testing.T) {
	server, accounts, _ := newTestServer(t)
	router := server.Router()

	if err := accounts.Commit("creatorA", models.ProcessedVideoRecord{
		VideoID:     "vid1",
		Success:     true,
		ProcessedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var summaries []accountSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Creator != "creatorA" || summaries[0].VideoCount != 1 {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
}

func TestVerifySystemReportsWarningWhenEmpty(t *testing.T) {
	server, _, _ := newTestServer(t)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/verify/system", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health models.SystemHealth
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if health.Status != "warning" {
		t.Fatalf("expected warning status for an empty system (no creators, no vectors), got %q", health.Status)
	}
}

func TestVerifySystemReportsHealthyWithCreatorsAndVectors(t *testing.T) {
	server, accounts, transcripts := newTestServer(t)
	router := server.Router()

	sentences := []models.Sentence{
		{Text: "hello world.", StartSec: 0, EndSec: 1},
	}
	if err := transcripts.Write("creatorA", "vid1", "hello world.", sentences); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	if err := accounts.Commit("creatorA", models.ProcessedVideoRecord{
		VideoID:     "vid1",
		Success:     true,
		ProcessedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	artifact, err := transcripts.Read("creatorA", "vid1")
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if _, err := server.searchEngine.IndexTranscript(context.Background(), artifact); err != nil {
		t.Fatalf("index transcript: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/verify/system", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var health models.SystemHealth
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if health.Status != "healthy" {
		t.Fatalf("expected healthy status with creators and vectors present, got %q", health.Status)
	}
}

func TestAccountTagsByVideoNotFoundWhenNoneProcessed(t *testing.T) {
	server, _, _ := newTestServer(t)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/unknown-creator/tags/by-video", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}
