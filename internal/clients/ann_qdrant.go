package clients

import (
	"fmt"
	"log"
)

// QdrantANN is an alternative ports.ANNIndex backend selectable via
// ANN_BACKEND=qdrant, modeled directly on the teacher's QdrantManager:
// a thin endpoint/collection wrapper with placeholder wire calls,
// ready to be swapped for the real Qdrant client.
type QdrantANN struct {
	endpoint   string
	apiKey     string
	collection string
	dimension  int
	size       int
}

// NewQdrantANN creates a Qdrant-backed ANN index client.
func NewQdrantANN(endpoint, apiKey, collection string) *QdrantANN {
	return &QdrantANN{
		endpoint:   endpoint,
		apiKey:     apiKey,
		collection: collection,
	}
}

// Reset (re)creates the collection for the given dimension.
func (q *QdrantANN) Reset(dimension int) {
	q.dimension = dimension
	q.size = 0
	log.Printf("QdrantANN: creating collection %s (dimension=%d, distance=Cosine)", q.collection, dimension)
	// TODO: issue the real Qdrant CreateCollection call once the
	// production client is wired in; for now this is a no-op against
	// the placeholder endpoint, same as QdrantManager.createCollection.
}

// Add uploads vectors to the collection, returning their ids.
func (q *QdrantANN) Add(vectors [][]float32) ([]int, error) {
	ids := make([]int, 0, len(vectors))
	for _, v := range vectors {
		if len(v) != q.dimension {
			return nil, fmt.Errorf("embedding dimension %d does not match collection dimension %d", len(v), q.dimension)
		}
		ids = append(ids, q.size)
		q.size++
	}
	log.Printf("QdrantANN: upserted %d points into %s (endpoint=%s)", len(vectors), q.collection, q.endpoint)
	// TODO: real upsert via the Qdrant gRPC/HTTP client.
	return ids, nil
}

// Search queries the collection for the top-k nearest points.
func (q *QdrantANN) Search(query []float32, k int) ([]int, []float32, error) {
	if len(query) != q.dimension {
		return nil, nil, fmt.Errorf("query dimension %d does not match collection dimension %d", len(query), q.dimension)
	}
	log.Printf("QdrantANN: search top-%d in %s", k, q.collection)
	// TODO: real search via the Qdrant client. Until wired, callers
	// should prefer FlatANN; this backend exists to demonstrate the
	// pluggable-ANN-port shape the teacher established for Qdrant.
	return nil, nil, nil
}

// Size returns the last known point count.
func (q *QdrantANN) Size() int { return q.size }
