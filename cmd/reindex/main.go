// Command reindex runs spec.md §4.6's rebuild_from_transcripts
// maintenance operation standalone, without starting the HTTP control
// plane or the queue consumer — for operators restoring the vector
// index from persisted transcripts after a data-loss incident, or
// after changing the embedding model.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/videoindex/ingestor/internal/accountindex"
	"github.com/videoindex/ingestor/internal/clients"
	"github.com/videoindex/ingestor/internal/config"
	"github.com/videoindex/ingestor/internal/maintenance"
	"github.com/videoindex/ingestor/internal/ports"
	"github.com/videoindex/ingestor/internal/search"
	"github.com/videoindex/ingestor/internal/transcriptstore"
	"github.com/videoindex/ingestor/internal/vectorindex"
)

func main() {
	var ann string
	flag.StringVar(&ann, "ann", "", "override ANN_BACKEND for this run (flat|qdrant)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := config.Load()
	if ann != "" {
		cfg.ANNBackend = ann
	}
	ctx := context.Background()

	embedder, err := clients.NewEmbeddingClient(cfg.EmbeddingURL, cfg.EmbeddingDimension)
	if err != nil {
		log.Fatalf("failed to initialize embedding client: %v", err)
	}

	var annIndex ports.ANNIndex
	switch cfg.ANNBackend {
	case "qdrant":
		annIndex = clients.NewQdrantANN(cfg.QdrantURL, os.Getenv("QDRANT_API_KEY"), "ingestor_segments")
	default:
		annIndex = clients.NewFlatANN(cfg.EmbeddingDimension)
	}

	vectorIndexDir := fmt.Sprintf("%s/vector_index", cfg.DataDir)
	vectorIndex, err := vectorindex.Open(vectorIndexDir, cfg.EmbeddingDimension, annIndex)
	if err != nil {
		log.Fatalf("failed to open vector index: %v", err)
	}

	accounts := accountindex.New(cfg.AccountsDir)
	transcripts := transcriptstore.New(cfg.AccountsDir)
	searchEngine := search.New(embedder, vectorIndex, search.Config{
		MinSearchScore:     cfg.MinSearchScore,
		HighlightThreshold: cfg.HighlightThreshold,
	})

	log.Printf("rebuilding vector index from %s ...", cfg.AccountsDir)
	count, err := maintenance.RebuildVectorIndex(ctx, accounts, transcripts, searchEngine, vectorIndex)
	if err != nil {
		log.Fatalf("rebuild failed: %v", err)
	}
	log.Printf("✓ vector index rebuilt: %d segments", count)
}
