package ingestion

import (
	"context"
	"fmt"
)

// StoredChunk はチャンクストアに永続化されるチャンク1件を表す
type StoredChunk struct {
	PageContent string `json:"page_content"`
	FileSHA256  string `json:"file_sha256"`
	ChunkIndex  int    `json:"chunk_index"`
}

// VectorRecord はベクトルインデックスに格納するレコードを表す。
// メタデータは参照用であり、所有関係の判定には使わない。
type VectorRecord struct {
	ID          string
	Source      string
	FileSHA256  string
	ChunkIndex  int
	PageContent string
	Vector      []float32
}

// Result は取り込み処理の結果を表す
type Result struct {
	IndexedFiles     []string `json:"indexed_files"`
	SkippedFiles     []string `json:"skipped_files"`
	TotalChunksAdded int      `json:"total_chunks_added"`
	CollectionName   string   `json:"collection_name"`
	PersistDir       string   `json:"persist_dir"`
}

// Embedder はテキストをベクトル表現に変換するインターフェース
type Embedder interface {
	// BatchEmbed はバッチでEmbeddingを生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// MaxBatchSize はバッチ処理の最大サイズを返す
	MaxBatchSize() int
}

// VectorIndex は取り込み側から見たベクトルインデックスの操作
type VectorIndex interface {
	// Add はレコードをインデックスに追加する（同一IDは上書き）
	Add(ctx context.Context, records []VectorRecord) error

	// Delete は指定IDのレコードを削除する（存在しないIDは無視）
	Delete(ctx context.Context, ids []string) error

	// ContainsAny は指定IDのいずれかがインデックスに存在するかを返す
	ContainsAny(ctx context.Context, ids []string) (bool, error)

	// CollectionName はコレクション名を返す
	CollectionName() string

	// PersistDir は永続化ディレクトリのパスを返す
	PersistDir() string
}

// DocID はチャンクの決定的な識別子を導出する。
// 同一内容のファイルからは常に同一のIDが得られる。
func DocID(relPath, fileSHA256 string, chunkIndex int) string {
	return fmt.Sprintf("%s:%s:%d", relPath, fileSHA256, chunkIndex)
}
