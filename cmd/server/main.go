// Command server runs the ingestion orchestrator's HTTP control plane
// and, unless WORKER_MODE=disabled, an in-process asynq worker
// consuming the jobs it enqueues — modeled on the teacher's
// cmd/worker standalone mode, with the queue consumer and the API
// sharing one process by default.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/videoindex/ingestor/internal/accountindex"
	"github.com/videoindex/ingestor/internal/category"
	"github.com/videoindex/ingestor/internal/clients"
	"github.com/videoindex/ingestor/internal/config"
	"github.com/videoindex/ingestor/internal/httpapi"
	"github.com/videoindex/ingestor/internal/jobmanager"
	"github.com/videoindex/ingestor/internal/maintenance"
	"github.com/videoindex/ingestor/internal/pipeline"
	"github.com/videoindex/ingestor/internal/ports"
	"github.com/videoindex/ingestor/internal/queue"
	"github.com/videoindex/ingestor/internal/scheduler"
	"github.com/videoindex/ingestor/internal/search"
	"github.com/videoindex/ingestor/internal/snapshot"
	"github.com/videoindex/ingestor/internal/topics"
	"github.com/videoindex/ingestor/internal/transcriptstore"
	"github.com/videoindex/ingestor/internal/umbrella"
	"github.com/videoindex/ingestor/internal/vectorindex"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := config.Load()
	ctx := context.Background()

	embedder, err := clients.NewEmbeddingClient(cfg.EmbeddingURL, cfg.EmbeddingDimension)
	if err != nil {
		log.Fatalf("failed to initialize embedding client: %v", err)
	}
	log.Println("✓ embedding client initialized")

	nlpClient, err := clients.NewNLPClient(cfg.NLPURL)
	if err != nil {
		log.Fatalf("failed to initialize NLP client: %v", err)
	}
	log.Println("✓ NLP client initialized")

	transcriber := clients.NewTranscriberClient(cfg.TranscriberURL, 10*time.Minute)
	log.Println("✓ transcriber client initialized")

	videoPlatform := clients.NewVideoPlatformClient(cfg.VideoPlatformURL, cfg.TempDir)
	log.Println("✓ video platform client initialized")

	authHook := clients.NewAuthHook(os.Getenv("AUTH_HOOK_URL"), os.Getenv("AUTH_HOOK_SERVICE_KEY"))
	if authHook != nil {
		log.Println("✓ auth hook configured (authenticated downloads enabled)")
	} else {
		log.Println("⏭️ auth hook not configured, authenticated downloads disabled")
	}

	var ann ports.ANNIndex
	switch cfg.ANNBackend {
	case "qdrant":
		ann = clients.NewQdrantANN(cfg.QdrantURL, os.Getenv("QDRANT_API_KEY"), "ingestor_segments")
		log.Println("✓ ANN backend: qdrant")
	default:
		ann = clients.NewFlatANN(cfg.EmbeddingDimension)
		log.Println("✓ ANN backend: flat")
	}

	vectorIndexDir := fmt.Sprintf("%s/vector_index", cfg.DataDir)
	vectorIndex, err := vectorindex.Open(vectorIndexDir, cfg.EmbeddingDimension, ann)
	if err != nil {
		log.Fatalf("failed to open vector index: %v", err)
	}
	log.Printf("✓ vector index opened (%d segments)", vectorIndex.Size())

	accounts := accountindex.New(cfg.AccountsDir)
	transcripts := transcriptstore.New(cfg.AccountsDir)

	stopPhrases, err := cfg.StopPhrases()
	if err != nil {
		log.Fatalf("failed to load stop phrases: %v", err)
	}
	canonRules, err := cfg.CanonicalTopics()
	if err != nil {
		log.Fatalf("failed to load canonical topics: %v", err)
	}
	canon := topics.NewCanonicaliser(canonRules)

	extractor, err := topics.New(embedder, nlpClient, stopPhrases, canon, topics.Config{
		TopK:      cfg.TopKTopics,
		MMRLambda: cfg.MMRLambda,
	})
	if err != nil {
		log.Fatalf("failed to initialize topic extractor: %v", err)
	}
	log.Println("✓ topic extractor initialized")

	searchEngine := search.New(embedder, vectorIndex, search.Config{
		MinSearchScore:     cfg.MinSearchScore,
		HighlightThreshold: cfg.HighlightThreshold,
	})

	classifier, err := category.New(ctx, embedder, config.CategorySet())
	if err != nil {
		log.Fatalf("failed to initialize category classifier: %v", err)
	}
	log.Println("✓ category classifier initialized")

	umbrellaBuilder := umbrella.New(umbrella.Config{
		SimilarityThreshold: cfg.SimilarityThreshold,
		MinClusterSize:      cfg.MinClusterSize,
		MaxUmbrellas:        cfg.MaxUmbrellas,
	})

	ingestPipeline := pipeline.New(
		videoPlatform,
		transcriber,
		embedder,
		accounts,
		transcripts,
		extractor,
		searchEngine,
		classifier,
		umbrellaBuilder,
		pipeline.Config{MinSpeechChars: cfg.MinSpeechChars, TempDir: cfg.TempDir},
	)
	if authHook != nil {
		ingestPipeline.SetAuthHook(authHook)
	}

	snapshotStore, err := snapshot.Open(cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to open snapshot store: %v", err)
	}
	if snapshotStore != nil {
		vectorIndex.SetMirror(snapshotStore)
		log.Println("✓ postgres snapshot mirror enabled")
	} else {
		log.Println("⏭️ POSTGRES_URL not set, snapshot mirror disabled")
	}

	jobs := jobmanager.New(ingestPipeline)
	if snapshotStore != nil {
		jobs.SetSnapshotStore(snapshotStore)
	}

	consumer, err := queue.NewRedisConsumer(queue.Config{
		RedisURL:    cfg.RedisURL,
		Concurrency: cfg.WorkerConcurrency,
		Manager:     jobs,
	})
	if err != nil {
		log.Fatalf("failed to initialize queue consumer: %v", err)
	}
	jobs.SetDispatcher(consumer)
	log.Println("✓ job queue consumer initialized")

	sched := scheduler.New()
	if err := sched.ScheduleRebuild("", func(ctx context.Context) {
		count, err := maintenance.RebuildVectorIndex(ctx, accounts, transcripts, searchEngine, vectorIndex)
		if err != nil {
			log.Printf("scheduled rebuild failed: %v", err)
			return
		}
		log.Printf("✓ scheduled vector index rebuild: %d segments", count)
	}); err != nil {
		log.Fatalf("failed to schedule vector index rebuild: %v", err)
	}
	if err := sched.ScheduleHealthCheck("", func(ctx context.Context) {
		log.Printf("scheduled health check: %d vectors indexed", vectorIndex.Size())
	}); err != nil {
		log.Fatalf("failed to schedule health check: %v", err)
	}
	sched.Start()
	log.Println("✓ scheduler started")

	if os.Getenv("WORKER_MODE") != "disabled" {
		go func() {
			if err := consumer.Start(); err != nil {
				log.Fatalf("queue consumer error: %v", err)
			}
		}()
		log.Println("✓ in-process worker started")
	} else {
		log.Println("⏭️ WORKER_MODE=disabled, run a separate worker process against the same Redis queue")
	}

	server := httpapi.New(accounts, transcripts, searchEngine, classifier, jobs, vectorIndex, videoPlatform, snapshotStore)
	router := server.Router()

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	httpServer := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("✅ ingestion orchestrator listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("shutdown signal received, stopping gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	consumer.Stop()
	sched.Stop()
	log.Println("ingestion orchestrator stopped")
}

