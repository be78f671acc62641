// Package vectorstore はチャンクEmbeddingのディスク永続コレクションを提供する。
// コレクションはディレクトリ1つに対応し、メタ情報(collection.json)、
// レコード(records.jsonl)、ベクトル本体(vectors.f32)の3ファイルで構成される。
package vectorstore

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/jinford/chaty-backend/internal/core/ingestion"
	"github.com/jinford/chaty-backend/internal/core/retrieval"
)

const (
	manifestFile = "collection.json"
	recordsFile  = "records.jsonl"
	vectorsFile  = "vectors.f32"
	lockFile     = ".collection.lock"
)

// collectionManifest はコレクションのメタ情報
type collectionManifest struct {
	Name        string `json:"name"`
	Dimension   int    `json:"dimension"`
	Count       int    `json:"count"`
	UpdatedAt   string `json:"updated_at"`
	RecordsFile string `json:"records_file"`
	VectorFile  string `json:"vector_file"`
}

// diskRecord はrecords.jsonlの1行に対応するレコード
type diskRecord struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	FileSHA256  string `json:"file_sha256"`
	ChunkIndex  int    `json:"chunk_index"`
	PageContent string `json:"page_content"`
}

// Store はブルートフォースのコサイン類似度検索を行うベクトルコレクション
type Store struct {
	mu         sync.RWMutex
	persistDir string
	dir        string
	name       string
	dimension  int
	records    []diskRecord
	byID       map[string]int
	vectors    []float32 // len(records) * dimension
	fileLock   *flock.Flock
}

// Open はコレクションを開く。存在しない場合は空のコレクションを作成する。
func Open(persistDir, collection string, dimension int) (*Store, error) {
	dir := filepath.Join(persistDir, collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create collection dir %s: %w", dir, err)
	}

	s := &Store{
		persistDir: persistDir,
		dir:        dir,
		name:       collection,
		dimension:  dimension,
		byID:       map[string]int{},
		fileLock:   flock.New(filepath.Join(dir, lockFile)),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// CollectionName はコレクション名を返す
func (s *Store) CollectionName() string {
	return s.name
}

// PersistDir は永続化ディレクトリのパスを返す
func (s *Store) PersistDir() string {
	return s.persistDir
}

// Count は格納されているレコード数を返す
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Add はレコードを追加する。既存IDは上書きされる。
func (s *Store) Add(ctx context.Context, records []ingestion.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range records {
		if s.dimension == 0 {
			s.dimension = len(record.Vector)
		}
		if len(record.Vector) != s.dimension {
			return fmt.Errorf("vector length mismatch for %s: got %d want %d", record.ID, len(record.Vector), s.dimension)
		}

		disk := diskRecord{
			ID:          record.ID,
			Source:      record.Source,
			FileSHA256:  record.FileSHA256,
			ChunkIndex:  record.ChunkIndex,
			PageContent: record.PageContent,
		}

		if pos, ok := s.byID[record.ID]; ok {
			s.records[pos] = disk
			copy(s.vectors[pos*s.dimension:(pos+1)*s.dimension], record.Vector)
			continue
		}

		s.byID[record.ID] = len(s.records)
		s.records = append(s.records, disk)
		s.vectors = append(s.vectors, record.Vector...)
	}

	return s.persist()
}

// Delete は指定IDのレコードを削除する。存在しないIDは無視する。
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := s.records[:0]
	keptVectors := s.vectors[:0]
	changed := false
	for i, record := range s.records {
		if _, ok := drop[record.ID]; ok {
			changed = true
			continue
		}
		kept = append(kept, record)
		keptVectors = append(keptVectors, s.vectors[i*s.dimension:(i+1)*s.dimension]...)
	}
	if !changed {
		return nil
	}

	s.records = kept
	s.vectors = keptVectors
	s.byID = make(map[string]int, len(s.records))
	for i, record := range s.records {
		s.byID[record.ID] = i
	}

	return s.persist()
}

// ContainsAny は指定IDのいずれかが存在するかを返す
func (s *Store) ContainsAny(ctx context.Context, ids []string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Search はクエリベクトルとのコサイン類似度が高い順に上位k件を返す
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]retrieval.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 || k <= 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector length mismatch: got %d want %d", len(vector), s.dimension)
	}

	hits := make([]retrieval.SearchHit, 0, len(s.records))
	for i, record := range s.records {
		score := cosine(vector, s.vectors[i*s.dimension:(i+1)*s.dimension])
		hits = append(hits, retrieval.SearchHit{
			Source:      record.Source,
			PageContent: record.PageContent,
			Score:       score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// cosine は2つのベクトルのコサイン類似度を計算する
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a); i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	den := math.Sqrt(na) * math.Sqrt(nb)
	if den == 0 {
		return 0
	}
	return dot / den
}

// load はディスク上のコレクションを読み込む。マニフェストが無ければ空のまま返す。
func (s *Store) load() error {
	data, err := os.ReadFile(filepath.Join(s.dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cannot read collection manifest: %w", err)
	}

	var manifest collectionManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("invalid collection manifest: %w", err)
	}
	if manifest.Dimension <= 0 {
		return fmt.Errorf("invalid dimension in collection manifest: %d", manifest.Dimension)
	}
	s.dimension = manifest.Dimension

	records, err := loadRecords(filepath.Join(s.dir, recordsFile))
	if err != nil {
		return err
	}
	vectors, err := loadVectors(filepath.Join(s.dir, vectorsFile), len(records), s.dimension)
	if err != nil {
		return err
	}

	s.records = records
	s.vectors = vectors
	s.byID = make(map[string]int, len(records))
	for i, record := range records {
		s.byID[record.ID] = i
	}
	return nil
}

// persist はコレクション全体をディスクへ書き出す。呼び出し側がs.muを保持していること。
func (s *Store) persist() error {
	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("cannot lock collection dir: %w", err)
	}
	defer s.fileLock.Unlock()

	manifest := collectionManifest{
		Name:        s.name,
		Dimension:   s.dimension,
		Count:       len(s.records),
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339),
		RecordsFile: recordsFile,
		VectorFile:  vectorsFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("cannot write collection manifest: %w", err)
	}

	rf, err := os.Create(filepath.Join(s.dir, recordsFile))
	if err != nil {
		return fmt.Errorf("cannot create records file: %w", err)
	}
	bw := bufio.NewWriter(rf)
	for _, record := range s.records {
		line, err := json.Marshal(record)
		if err != nil {
			_ = rf.Close()
			return err
		}
		if _, err := bw.Write(line); err != nil {
			_ = rf.Close()
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			_ = rf.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = rf.Close()
		return err
	}
	if err := rf.Close(); err != nil {
		return err
	}

	vf, err := os.Create(filepath.Join(s.dir, vectorsFile))
	if err != nil {
		return fmt.Errorf("cannot create vectors file: %w", err)
	}
	if err := binary.Write(vf, binary.LittleEndian, s.vectors); err != nil {
		_ = vf.Close()
		return fmt.Errorf("cannot write vectors: %w", err)
	}
	return vf.Close()
}

func loadRecords(path string) ([]diskRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open records file %s: %w", path, err)
	}
	defer f.Close()

	var out []diskRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record diskRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("invalid records JSONL %s: %w", path, err)
		}
		out = append(out, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read records file %s: %w", path, err)
	}
	return out, nil
}

func loadVectors(path string, nRecords, dimension int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open vector file %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat vector file %s: %w", path, err)
	}
	expected := int64(nRecords * dimension * 4)
	if st.Size() != expected {
		return nil, fmt.Errorf("vector file size mismatch: got %d want %d (records=%d dimension=%d)", st.Size(), expected, nRecords, dimension)
	}

	out := make([]float32, nRecords*dimension)
	if err := binary.Read(io.LimitReader(f, expected), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("cannot read vectors from %s: %w", path, err)
	}
	return out, nil
}

// インターフェース実装の確認
var _ ingestion.VectorIndex = (*Store)(nil)
var _ retrieval.VectorSearcher = (*Store)(nil)
