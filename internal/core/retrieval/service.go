package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/chaty-backend/internal/core/provider"
)

// Service は質問文に対する関連チャンク検索を提供する。
// 一次経路はベクトル類似度検索で、結果が空の場合または認可エラーの場合は
// チャンクストアから構築した字句インデックスへフォールバックする。
type Service struct {
	searcher VectorSearcher
	embedder QueryEmbedder
	chunks   ChunkSource
	logger   *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithRetrievalLogger は Service にロガーを設定する
func WithRetrievalLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しいServiceを作成する
func NewService(searcher VectorSearcher, embedder QueryEmbedder, chunks ChunkSource, opts ...ServiceOption) *Service {
	svc := &Service{
		searcher: searcher,
		embedder: embedder,
		chunks:   chunks,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// Retrieve はクエリに関連するチャンクをスコアの良い順に最大k件返す
func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]SearchHit, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if provider.IsAuth(err) {
			s.logger.Warn("embedding provider unauthorized; using lexical retrieval", "error", err)
			return s.retrieveLexical(query, k)
		}
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.searcher.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(hits) > 0 {
		return hits, nil
	}

	// インデックスが空か一致なし。字句検索へフォールバックする。
	return s.retrieveLexical(query, k)
}

// retrieveLexical はチャンクストア全体に対するBM25ランキングで検索する
func (s *Service) retrieveLexical(query string, k int) ([]SearchHit, error) {
	store, err := s.chunks.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk store for lexical retrieval: %w", err)
	}
	if len(store) == 0 {
		return nil, nil
	}
	return newLexicalIndex(store).search(query, k), nil
}
