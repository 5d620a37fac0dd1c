// Package vectorindex implements C6 VectorIndex: the single shared,
// append-only store of dense segment embeddings and their metadata
// (spec.md §4.6). It is the durable source of truth; ports.ANNIndex
// (internal/clients) is only an in-memory scoring accelerator rebuilt
// from this store at startup.
package vectorindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/models"
	"github.com/videoindex/ingestor/internal/ports"
)

const vectorsFile = "vectors.bin"
const metaFile = "metadata.jsonl"

// SegmentMirror mirrors the durable store into an external queryable
// replica (internal/snapshot's Postgres mirror), kept in sync with
// every append/rebuild so /api/verify/system's cross-check reflects
// reality. Consulted as a best-effort sink: a mirror failure is
// logged, never surfaced to the caller.
type SegmentMirror interface {
	AppendSegments(segments []models.IndexSegment) error
	ReplaceSegments(segments []models.IndexSegment) error
}

// Index is the append-only vector + metadata store, guarded by a
// single mutex the same way accountindex.AccountIndex serialises
// writes per creator (here, globally: the index is shared across
// creators per spec.md §4.6).
type Index struct {
	dir       string
	dimension int
	ann       ports.ANNIndex
	mirror    SegmentMirror

	mu       sync.Mutex
	metadata []models.IndexSegment
	indexed  map[string]struct{} // "{creator}/{video_id}" already-indexed videos
}

// SetMirror wires the optional Postgres segment mirror. Safe to leave
// unset (or set to nil): appends/rebuilds simply skip mirroring.
func (idx *Index) SetMirror(m SegmentMirror) {
	idx.mirror = m
}

// Open loads existing metadata (if any) from dir, replays vectors into
// ann, and returns a ready Index. dir is created if missing.
func Open(dir string, dimension int, ann ports.ANNIndex) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindIndexWriteError, "create vector index dir", err)
	}

	idx := &Index{
		dir:       dir,
		dimension: dimension,
		ann:       ann,
		indexed:   map[string]struct{}{},
	}
	ann.Reset(dimension)

	metadata, vectors, err := idx.readAll()
	if err != nil {
		return nil, err
	}
	if len(metadata) != len(vectors) {
		return nil, apperr.New(apperr.KindIndexWriteError, "vector/metadata count mismatch on load")
	}
	if len(vectors) > 0 {
		if _, err := ann.Add(vectors); err != nil {
			return nil, apperr.Wrap(apperr.KindIndexWriteError, "replay vectors into ANN", err)
		}
	}
	idx.metadata = metadata
	for _, m := range metadata {
		idx.indexed[videoKey(m.Creator, m.VideoID)] = struct{}{}
	}
	return idx, nil
}

func videoKey(creator, videoID string) string {
	return fmt.Sprintf("%s/%s", creator, videoID)
}

// IsIndexed reports whether a video already has segments in the store,
// the de-dup check spec.md §4.8 calls for at the {creator,video_id}
// granularity: re-indexing the same transcript is a no-op.
func (idx *Index) IsIndexed(creator, videoID string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.indexed[videoKey(creator, videoID)]
	return ok
}

// Append adds new segments for a single video, assigning each a fresh
// positional segment_id. If the video was already indexed the call is
// a no-op (spec.md §4.8 crash-recovery rationale: a retried append
// after a partial write must not duplicate rows). All segments in one
// call must share the same creator/video_id. Returns the segment ids
// assigned.
func (idx *Index) Append(creator, videoID string, segments []models.IndexSegment) ([]int64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, dup := idx.indexed[videoKey(creator, videoID)]; dup {
		return nil, nil
	}
	if len(segments) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(segments))
	next := int64(len(idx.metadata))
	for i := range segments {
		if len(segments[i].Embedding) != idx.dimension {
			return nil, apperr.New(apperr.KindEmbeddingMismatch, "segment embedding dimension mismatch")
		}
		segments[i].Creator = creator
		segments[i].VideoID = videoID
		segments[i].SegmentID = next + int64(i)
		vectors[i] = segments[i].Embedding
	}

	if err := idx.appendVectorsLocked(vectors); err != nil {
		return nil, err
	}
	if err := idx.appendMetadataLocked(segments); err != nil {
		return nil, err
	}
	if _, err := idx.ann.Add(vectors); err != nil {
		return nil, apperr.Wrap(apperr.KindIndexWriteError, "add vectors to ANN", err)
	}

	ids := make([]int64, len(segments))
	for i, s := range segments {
		ids[i] = s.SegmentID
		idx.metadata = append(idx.metadata, s)
	}
	idx.indexed[videoKey(creator, videoID)] = struct{}{}

	if idx.mirror != nil {
		if err := idx.mirror.AppendSegments(segments); err != nil {
			log.Printf("vectorindex: segment mirror append failed for %s/%s: %v", creator, videoID, err)
		}
	}
	return ids, nil
}

// appendVectorsLocked appends raw float32 vectors to vectors.bin and
// fsyncs before returning, so a crash mid-append leaves at worst a
// truncated tail row, never a corrupted earlier one.
func (idx *Index) appendVectorsLocked(vectors [][]float32) error {
	f, err := os.OpenFile(filepath.Join(idx.dir, vectorsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.KindIndexWriteError, "open vectors file", err)
	}
	defer f.Close()

	buf := make([]byte, 4*idx.dimension)
	for _, v := range vectors {
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(x))
		}
		if _, err := f.Write(buf); err != nil {
			return apperr.Wrap(apperr.KindIndexWriteError, "write vector row", err)
		}
	}
	return f.Sync()
}

// appendMetadataLocked appends one JSON line per segment to
// metadata.jsonl and fsyncs.
func (idx *Index) appendMetadataLocked(segments []models.IndexSegment) error {
	f, err := os.OpenFile(filepath.Join(idx.dir, metaFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.KindIndexWriteError, "open metadata file", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, s := range segments {
		if err := enc.Encode(s); err != nil {
			return apperr.Wrap(apperr.KindIndexWriteError, "write metadata row", err)
		}
	}
	return f.Sync()
}

// readAll loads metadata.jsonl and vectors.bin from disk, truncating
// either to the shared minimum row count so a partially-written tail
// row (from a crash between the two appends) is dropped rather than
// surfaced as a mismatch. Call only from Open, before concurrent use.
func (idx *Index) readAll() ([]models.IndexSegment, [][]float32, error) {
	metaPath := filepath.Join(idx.dir, metaFile)
	vecPath := filepath.Join(idx.dir, vectorsFile)

	var metadata []models.IndexSegment
	if f, err := os.Open(metaPath); err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var seg models.IndexSegment
			if jsonErr := json.Unmarshal(scanner.Bytes(), &seg); jsonErr != nil {
				break // stop at first corrupt/truncated line
			}
			metadata = append(metadata, seg)
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, apperr.Wrap(apperr.KindIndexWriteError, "read metadata file", err)
	}

	var vectors [][]float32
	if f, err := os.Open(vecPath); err == nil {
		defer f.Close()
		rowBytes := 4 * idx.dimension
		buf := make([]byte, rowBytes)
		for {
			n, readErr := f.Read(buf)
			if n < rowBytes {
				break // partial/trailing row from a crash mid-append
			}
			v := make([]float32, idx.dimension)
			for i := 0; i < idx.dimension; i++ {
				v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4 : i*4+4]))
			}
			vectors = append(vectors, v)
			if readErr != nil {
				break
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, apperr.Wrap(apperr.KindIndexWriteError, "read vectors file", err)
	}

	if len(metadata) != len(vectors) {
		n := len(metadata)
		if len(vectors) < n {
			n = len(vectors)
		}
		metadata = metadata[:n]
		vectors = vectors[:n]
	}
	return metadata, vectors, nil
}

// Size returns the number of segments currently stored.
func (idx *Index) Size() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.metadata)
}

// Metadata returns a snapshot copy of every stored segment's metadata,
// in append order (positional segment_id is monotonic).
func (idx *Index) Metadata() []models.IndexSegment {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]models.IndexSegment, len(idx.metadata))
	copy(out, idx.metadata)
	return out
}

// Search delegates to the in-memory ANN backend and resolves result
// positions back to their stored metadata rows.
func (idx *Index) Search(query []float32, k int) ([]models.IndexSegment, []float32, error) {
	idx.mu.Lock()
	metadata := idx.metadata
	idx.mu.Unlock()

	ids, scores, err := idx.ann.Search(query, k)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInternalError, "ANN search failed", err)
	}
	segments := make([]models.IndexSegment, 0, len(ids))
	filteredScores := make([]float32, 0, len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(metadata) {
			continue
		}
		segments = append(segments, metadata[id])
		filteredScores = append(filteredScores, scores[i])
	}
	return segments, filteredScores, nil
}

// Rebuild discards the on-disk store and ANN state and replaces them
// with segments, assigning fresh monotonic segment ids in the order
// given (spec.md §4.6 rebuild_from_transcripts). Callers must supply
// segments sorted the way they want search-tie-breaking to favor
// (e.g. by creator then video then start_sec) since this is the only
// point determinism is established for a full rebuild.
func (idx *Index) Rebuild(segments []models.IndexSegment) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i := range segments {
		segments[i].SegmentID = int64(i)
	}

	if err := os.Remove(filepath.Join(idx.dir, vectorsFile)); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.KindIndexWriteError, "remove vectors file for rebuild", err)
	}
	if err := os.Remove(filepath.Join(idx.dir, metaFile)); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.KindIndexWriteError, "remove metadata file for rebuild", err)
	}

	idx.metadata = nil
	idx.indexed = map[string]struct{}{}
	idx.ann.Reset(idx.dimension)

	vectors := make([][]float32, len(segments))
	for i, s := range segments {
		vectors[i] = s.Embedding
	}
	if len(segments) > 0 {
		if err := idx.appendVectorsLocked(vectors); err != nil {
			return err
		}
		if err := idx.appendMetadataLocked(segments); err != nil {
			return err
		}
		if _, err := idx.ann.Add(vectors); err != nil {
			return apperr.Wrap(apperr.KindIndexWriteError, "add rebuilt vectors to ANN", err)
		}
	}
	idx.metadata = segments
	for _, s := range segments {
		idx.indexed[videoKey(s.Creator, s.VideoID)] = struct{}{}
	}

	if idx.mirror != nil {
		if err := idx.mirror.ReplaceSegments(segments); err != nil {
			log.Printf("vectorindex: segment mirror replace failed: %v", err)
		}
	}
	return nil
}

// NextSegmentID returns the id the next Append call will assign to its
// first fresh segment, for callers building IndexSegment values ahead
// of time.
func (idx *Index) NextSegmentID() int64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return int64(len(idx.metadata))
}
