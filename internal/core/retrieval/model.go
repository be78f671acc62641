package retrieval

import (
	"context"

	"github.com/jinford/chaty-backend/internal/core/ingestion"
)

// SearchHit は検索結果1件を表す。スコアは取得経路によって意味が異なり、
// ベクトル検索ではコサイン類似度、字句検索フォールバックでは常に0.0となる。
type SearchHit struct {
	Source      string
	PageContent string
	Score       float64
}

// VectorSearcher はベクトル類似度検索のインターフェース
type VectorSearcher interface {
	// Search はクエリベクトルに類似する上位k件をスコア降順で返す
	Search(ctx context.Context, vector []float32, k int) ([]SearchHit, error)
}

// QueryEmbedder はクエリテキストをベクトルに変換するインターフェース
type QueryEmbedder interface {
	// Embed はテキストからEmbeddingベクトルを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkSource は字句検索フォールバックのコーパスを供給するインターフェース
type ChunkSource interface {
	// Load はソースファイルごとの現在のチャンク一覧を返す
	Load() (map[string][]ingestion.StoredChunk, error)
}
