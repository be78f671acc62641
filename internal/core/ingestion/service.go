package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/jinford/chaty-backend/internal/core/provider"
)

// embedState は実行スコープのEmbedding可否を表す三値の状態。
// 最初の認証エラーで一度だけdisabledに遷移し、以降のファイルはすべて
// チャンクストアのみ更新される。次回の実行では改めて評価し直す。
type embedState int

const (
	embedUntried embedState = iota
	embedOK
	embedDisabled
)

// presenceSampleSize はマニフェストを信頼する前に実在確認するID数の上限
const presenceSampleSize = 3

// IngestService は文書取り込みのユースケースを提供する
type IngestService struct {
	rootDir   string
	ingestDir string
	extractor *Extractor
	splitter  *Splitter
	manifests *ManifestStore
	chunks    *ChunkStore
	index     VectorIndex
	embedder  Embedder
	logger    *slog.Logger
}

// IngestServiceOption は IngestService のオプション設定
type IngestServiceOption func(*IngestService)

// WithIngestLogger は IngestService にロガーを設定する
func WithIngestLogger(logger *slog.Logger) IngestServiceOption {
	return func(s *IngestService) {
		s.logger = logger
	}
}

// NewIngestService は新しいIngestServiceを作成する
func NewIngestService(
	rootDir string,
	ingestDir string,
	splitter *Splitter,
	manifests *ManifestStore,
	chunks *ChunkStore,
	index VectorIndex,
	embedder Embedder,
	opts ...IngestServiceOption,
) *IngestService {
	svc := &IngestService{
		rootDir:   rootDir,
		ingestDir: ingestDir,
		extractor: NewExtractor(),
		splitter:  splitter,
		manifests: manifests,
		chunks:    chunks,
		index:     index,
		embedder:  embedder,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// Ingest は取り込みディレクトリを走査し、増分で再インデックスする。
// forceが真の場合はハッシュ一致によるスキップを行わない。
func (s *IngestService) Ingest(ctx context.Context, force bool) (*Result, error) {
	runID := uuid.New().String()

	if err := os.MkdirAll(s.ingestDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ingest dir: %w", err)
	}

	manifest, err := s.manifests.Load()
	if err != nil {
		return nil, err
	}
	chunkStore, err := s.chunks.Load()
	if err != nil {
		return nil, err
	}

	files, err := s.discoverFiles()
	if err != nil {
		return nil, err
	}

	s.logger.Info("ingest run started",
		"runID", runID,
		"force", force,
		"files", len(files),
	)

	run := &ingestRun{
		state:           embedUntried,
		priorStoreEmpty: len(chunkStore) == 0,
		discovered:      map[string]struct{}{},
	}

	result := &Result{
		IndexedFiles:   []string{},
		SkippedFiles:   []string{},
		CollectionName: s.index.CollectionName(),
		PersistDir:     s.index.PersistDir(),
	}

	for _, path := range files {
		relPath, err := s.relPath(path)
		if err != nil {
			return nil, err
		}
		run.discovered[relPath] = struct{}{}

		if err := s.processFile(ctx, path, relPath, force, manifest, chunkStore, run, result); err != nil {
			return nil, err
		}
	}

	s.reconcileStale(ctx, manifest, chunkStore, run)

	// マニフェスト→チャンクストアの順で保存する。途中でクラッシュした場合の
	// 不整合は許容する（DESIGN.md参照）。
	if err := s.manifests.Save(manifest); err != nil {
		return nil, err
	}
	if err := s.chunks.Save(chunkStore); err != nil {
		return nil, err
	}

	s.logger.Info("ingest run completed",
		"runID", runID,
		"indexed", len(result.IndexedFiles),
		"skipped", len(result.SkippedFiles),
		"chunksAdded", result.TotalChunksAdded,
		"embeddingDisabled", run.state == embedDisabled,
	)

	return result, nil
}

// ingestRun は1回の取り込み実行に閉じた状態を保持する
type ingestRun struct {
	state           embedState
	priorStoreEmpty bool
	discovered      map[string]struct{}
}

// processFile はソースファイル1件分の取り込み判断を行う
func (s *IngestService) processFile(
	ctx context.Context,
	path, relPath string,
	force bool,
	manifest *Manifest,
	chunkStore map[string][]StoredChunk,
	run *ingestRun,
	result *Result,
) error {
	fileHash, err := hashFile(path)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", relPath, err)
	}

	previous := manifest.Files[relPath]
	previousIDs := previous.DocIDs

	// ハッシュ一致だけではインデックスが外部で消されたケースを拾えないため、
	// 記録済みIDの一部が実在することを確認してからスキップする
	if !force && previous.SHA256 == fileHash && s.hasPersistedVectors(ctx, previousIDs) {
		result.SkippedFiles = append(result.SkippedFiles, relPath)
		return nil
	}

	text, err := s.extractor.Extract(path)
	if err != nil {
		// 壊れたファイルを毎回リトライしないよう、ハッシュだけ更新して記録する
		s.logger.Warn("skipping file: extraction failed", "path", relPath, "error", err)
		result.SkippedFiles = append(result.SkippedFiles, relPath)
		manifest.Files[relPath] = ManifestEntry{SHA256: fileHash, DocIDs: previousIDs}
		return nil
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		result.SkippedFiles = append(result.SkippedFiles, relPath)
		manifest.Files[relPath] = ManifestEntry{SHA256: fileHash, DocIDs: []string{}}
		chunkStore[relPath] = []StoredChunk{}
		return nil
	}

	records := make([]VectorRecord, 0, len(chunks))
	docIDs := make([]string, 0, len(chunks))
	stored := make([]StoredChunk, 0, len(chunks))
	for i, chunk := range chunks {
		docIDs = append(docIDs, DocID(relPath, fileHash, i))
		records = append(records, VectorRecord{
			ID:          DocID(relPath, fileHash, i),
			Source:      relPath,
			FileSHA256:  fileHash,
			ChunkIndex:  i,
			PageContent: chunk,
		})
		stored = append(stored, StoredChunk{
			PageContent: chunk,
			FileSHA256:  fileHash,
			ChunkIndex:  i,
		})
	}

	// 字句検索フォールバックが常に現在の内容を反映するよう、
	// Embeddingの成否に関わらずチャンクストアは更新する
	chunkStore[relPath] = stored

	persistedIDs := previousIDs
	if run.state != embedDisabled {
		err := s.embedAndStore(ctx, previousIDs, records)
		switch {
		case err == nil:
			run.state = embedOK
			persistedIDs = docIDs
		case provider.IsAuth(err):
			if run.state == embedUntried && run.priorStoreEmpty {
				// 初回のEmbedding試行での認証失敗かつフォールバック用コーパスが
				// 存在しない場合のみ、呼び出し元へそのまま返す
				return fmt.Errorf("embedding rejected on first attempt: %w", err)
			}
			run.state = embedDisabled
			s.logger.Warn("embedding provider unauthorized; falling back to lexical retrieval for the rest of this run",
				"path", relPath,
				"error", err,
			)
		default:
			return fmt.Errorf("failed to embed %s: %w", relPath, err)
		}
	}

	manifest.Files[relPath] = ManifestEntry{SHA256: fileHash, DocIDs: persistedIDs}
	result.IndexedFiles = append(result.IndexedFiles, relPath)
	result.TotalChunksAdded += len(chunks)
	return nil
}

// embedAndStore はチャンクをEmbeddingしてベクトルインデックスへ格納する。
// 旧IDが残っている場合は先に削除し、古いベクトルの取り残しを防ぐ。
func (s *IngestService) embedAndStore(ctx context.Context, previousIDs []string, records []VectorRecord) error {
	batchSize := s.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 100
	}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		texts := make([]string, 0, end-start)
		for _, record := range records[start:end] {
			texts = append(texts, record.PageContent)
		}

		vectors, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		for i := range vectors {
			records[start+i].Vector = vectors[i]
		}
	}

	if len(previousIDs) > 0 {
		if err := s.index.Delete(ctx, previousIDs); err != nil {
			return fmt.Errorf("failed to delete stale vectors: %w", err)
		}
	}
	if err := s.index.Add(ctx, records); err != nil {
		return fmt.Errorf("failed to add vectors: %w", err)
	}
	return nil
}

// reconcileStale は今回の走査で見つからなかったファイルの記録を破棄する
func (s *IngestService) reconcileStale(
	ctx context.Context,
	manifest *Manifest,
	chunkStore map[string][]StoredChunk,
	run *ingestRun,
) {
	var stale []string
	for path := range manifest.Files {
		if _, ok := run.discovered[path]; !ok {
			stale = append(stale, path)
		}
	}
	sort.Strings(stale)

	for _, path := range stale {
		staleIDs := manifest.Files[path].DocIDs
		if len(staleIDs) > 0 && run.state != embedDisabled {
			// ベクトル削除はベストエフォートで行い、失敗しても記録は破棄する
			if err := s.index.Delete(ctx, staleIDs); err != nil {
				s.logger.Warn("failed to delete vectors for removed file", "path", path, "error", err)
			}
		}
		delete(manifest.Files, path)
		delete(chunkStore, path)
		s.logger.Info("removed stale ingest entry", "path", path)
	}
}

// hasPersistedVectors は記録済みIDの一部を実在確認する
func (s *IngestService) hasPersistedVectors(ctx context.Context, docIDs []string) bool {
	if len(docIDs) == 0 {
		return false
	}
	sample := docIDs
	if len(sample) > presenceSampleSize {
		sample = sample[:presenceSampleSize]
	}
	found, err := s.index.ContainsAny(ctx, sample)
	if err != nil {
		return false
	}
	return found
}

// discoverFiles は取り込みディレクトリを再帰走査し、対象ファイルをソート順で返す
func (s *IngestService) discoverFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.ingestDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsSupportedFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan ingest dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// relPath はルートディレクトリからの相対パスをスラッシュ区切りで返す
func (s *IngestService) relPath(path string) (string, error) {
	rel, err := filepath.Rel(s.rootDir, path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve relative path for %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}

// hashFile はファイル内容のSHA-256ダイジェストを計算する
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
