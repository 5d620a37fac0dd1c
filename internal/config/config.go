// Package config loads environment configuration and the static
// knowledge-base inputs from spec.md §6.4 (stop phrases, canonical
// topic merge rules, the closed category set).
package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the ambient configuration loaded once at startup and
// shared read-only, following cmd/worker/main.go's loadConfig pattern.
type Config struct {
	APIHost string
	APIPort int

	AccountsDir string
	DataDir     string
	ConfigDir   string

	RedisURL    string
	PostgresURL string

	VideoPlatformURL string
	TranscriberURL   string
	EmbeddingURL     string
	NLPURL           string
	ANNBackend       string // "flat" (default) or "qdrant"
	QdrantURL        string

	EmbeddingDimension int

	SimilarityThreshold float64
	MMRLambda           float64
	MaxUmbrellas        int
	MinClusterSize      int
	MinSpeechChars      int
	MinSearchScore      float64
	HighlightThreshold  float64
	TopKTopics          int

	WorkerConcurrency int
	TempDir           string
}

// Load reads configuration from environment variables, applying the
// same defaults-with-getEnv pattern as the teacher's loadConfig.
func Load() Config {
	return Config{
		APIHost: getEnv("API_HOST", "0.0.0.0"),
		APIPort: getEnvInt("API_PORT", 8080),

		AccountsDir: getEnv("ACCOUNTS_DIR", "./data/accounts"),
		DataDir:     getEnv("DATA_DIR", "./data"),
		ConfigDir:   getEnv("CONFIG_DIR", "./config"),

		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		PostgresURL: getEnv("POSTGRES_URL", ""),

		VideoPlatformURL: getEnv("VIDEO_PLATFORM_URL", "http://localhost:8091"),
		TranscriberURL:   getEnv("TRANSCRIBER_URL", "http://localhost:8092"),
		EmbeddingURL:     getEnv("EMBEDDING_URL", "http://localhost:8093"),
		NLPURL:           getEnv("NLP_URL", "http://localhost:8094"),
		ANNBackend:       getEnv("ANN_BACKEND", "flat"),
		QdrantURL:        getEnv("QDRANT_URL", "localhost"),

		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1024),

		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.7),
		MMRLambda:           getEnvFloat("MMR_LAMBDA", 0.7),
		MaxUmbrellas:        getEnvInt("MAX_UMBRELLAS", 5),
		MinClusterSize:      getEnvInt("MIN_CLUSTER_SIZE", 2),
		MinSpeechChars:      getEnvInt("MIN_SPEECH_CHARS", 50),
		MinSearchScore:      getEnvFloat("MIN_SEARCH_SCORE", 0.15),
		HighlightThreshold:  getEnvFloat("HIGHLIGHT_THRESHOLD", 0.30),
		TopKTopics:          getEnvInt("TOP_K_TOPICS", 10),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 1),
		TempDir:           getEnv("TEMP_DIR", "/tmp/ingestor"),
	}
}

// StopPhrases loads the newline-separated generic phrase list.
func (c Config) StopPhrases() (map[string]struct{}, error) {
	path := filepath.Join(c.ConfigDir, "stop_phrases.txt")
	set := map[string]struct{}{}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return defaultStopPhrases(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open stop phrases: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.ToLower(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stop phrases: %w", err)
	}
	return set, nil
}

func defaultStopPhrases() map[string]struct{} {
	words := []string{
		"thank you", "thanks for watching", "video", "today", "guys",
		"subscribe", "like and subscribe", "comment below", "this video",
		"the video", "this one", "a lot", "lot of", "kind of", "sort of",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// CanonicalRules is §6.4's canonical_topics.json shape.
type CanonicalRules struct {
	MergeRules          map[string]string `json:"merge_rules"`
	AutoMergeCosine     float64           `json:"auto_merge_cosine"`
	AutoMergeEditDistance int             `json:"auto_merge_edit_distance"`
}

// CanonicalTopics loads canonical_topics.json, defaulting to an empty
// rule set with the spec's documented thresholds.
func (c Config) CanonicalTopics() (CanonicalRules, error) {
	path := filepath.Join(c.ConfigDir, "canonical_topics.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return CanonicalRules{MergeRules: map[string]string{}, AutoMergeCosine: 0.9, AutoMergeEditDistance: 2}, nil
	}
	if err != nil {
		return CanonicalRules{}, fmt.Errorf("read canonical_topics.json: %w", err)
	}

	var wire struct {
		MergeRules  map[string]string `json:"merge_rules"`
		AutoMerge   struct {
			Cosine        float64 `json:"cosine"`
			EditDistanceMax int   `json:"edit_distance_max"`
		} `json:"auto_merge_threshold"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return CanonicalRules{}, fmt.Errorf("parse canonical_topics.json: %w", err)
	}
	rules := CanonicalRules{
		MergeRules:            wire.MergeRules,
		AutoMergeCosine:       wire.AutoMerge.Cosine,
		AutoMergeEditDistance: wire.AutoMerge.EditDistanceMax,
	}
	if rules.MergeRules == nil {
		rules.MergeRules = map[string]string{}
	}
	if rules.AutoMergeCosine == 0 {
		rules.AutoMergeCosine = 0.9
	}
	if rules.AutoMergeEditDistance == 0 {
		rules.AutoMergeEditDistance = 2
	}
	return rules, nil
}

// ClosedCategorySet is the fixed 15-category set from spec.md §4.4.
type Category struct {
	Name       string
	Descriptor string
}

// CategorySet returns the fixed closed category set with short
// textual descriptors used as classifier anchors.
func CategorySet() []Category {
	return []Category{
		{"Comedy", "jokes, skits, stand-up and humorous sketches"},
		{"Education", "tutorials, explainers and how-to lessons"},
		{"Fitness", "workouts, training routines and exercise tips"},
		{"Food", "cooking, recipes, restaurant reviews and taste tests"},
		{"Gaming", "video game play, walkthroughs and esports commentary"},
		{"Music", "performances, covers, production and music discussion"},
		{"Beauty", "makeup, skincare and grooming tutorials"},
		{"Fashion", "outfits, styling tips and clothing hauls"},
		{"Travel", "trip vlogs, destination guides and travel tips"},
		{"Tech", "gadget reviews, software demos and tech news"},
		{"Finance", "investing, budgeting and personal finance advice"},
		{"Lifestyle", "daily vlogs, routines and personal reflections"},
		{"Sports", "athletic competition, highlights and sports analysis"},
		{"News", "current events commentary and news recaps"},
		{"Parenting", "family life, childcare and parenting advice"},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
