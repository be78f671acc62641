// Package container はアプリケーションの依存関係を組み立てる。
package container

import (
	"fmt"
	"log/slog"

	"github.com/jinford/chaty-backend/internal/core/chat"
	"github.com/jinford/chaty-backend/internal/core/ingestion"
	"github.com/jinford/chaty-backend/internal/core/retrieval"
	"github.com/jinford/chaty-backend/internal/infra/openai"
	"github.com/jinford/chaty-backend/internal/infra/vectorstore"
	"github.com/jinford/chaty-backend/pkg/config"
)

// collectionName は永続化するベクトルコレクション名
const collectionName = "chaty"

// EmbedderClient は取り込みと検索の両方で使う埋め込みクライアント
type EmbedderClient interface {
	ingestion.Embedder
	retrieval.QueryEmbedder
}

// ServiceContainer はサービス層の依存関係を保持する
type ServiceContainer struct {
	IngestService    *ingestion.IngestService
	RetrievalService *retrieval.Service
	ChatService      *chat.Service
	Sessions         *chat.SessionStore
	VectorStore      *vectorstore.Store

	logger *slog.Logger
}

type containerOptions struct {
	logger    *slog.Logger
	embedder  EmbedderClient
	completer chat.Completer
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム埋め込みクライアントを注入する
func WithContainerEmbedder(embedder EmbedderClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerCompleter はカスタム補完クライアントを注入する
func WithContainerCompleter(completer chat.Completer) ContainerOption {
	return func(opts *containerOptions) {
		opts.completer = completer
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// VectorStore（ファイル永続化）
	store, err := vectorstore.Open(cfg.Storage.VectorDataDir, collectionName, cfg.OpenAI.EmbeddingDimension)
	if err != nil {
		return nil, fmt.Errorf("ベクトルストア初期化に失敗しました: %w", err)
	}

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		embedder = openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
			openai.WithEmbeddingBaseURL(cfg.OpenAI.BaseURL),
		)
	}

	// Completer (OpenAI)
	completer := options.completer
	if completer == nil {
		completer = openai.NewChatClient(
			cfg.OpenAI.APIKey,
			openai.WithChatBaseURL(cfg.OpenAI.BaseURL),
		)
	}

	manifests := ingestion.NewManifestStore(cfg.Storage.ManifestPath)
	chunks := ingestion.NewChunkStore(cfg.Storage.ChunkStorePath)
	splitter := ingestion.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)

	ingestService := ingestion.NewIngestService(
		cfg.Storage.RootDir,
		cfg.Storage.IngestDir,
		splitter,
		manifests,
		chunks,
		store,
		embedder,
		ingestion.WithIngestLogger(options.logger),
	)

	retrievalService := retrieval.NewService(
		store,
		embedder,
		chunks,
		retrieval.WithRetrievalLogger(options.logger),
	)

	chatService := chat.NewService(
		retrievalService,
		completer,
		cfg.OpenAI.ChatModel,
		chat.WithDefaultTopK(cfg.RAG.TopK),
		chat.WithChatLogger(options.logger),
	)

	return &ServiceContainer{
		IngestService:    ingestService,
		RetrievalService: retrievalService,
		ChatService:      chatService,
		Sessions:         chat.NewSessionStore(chat.DefaultMaxMessages),
		VectorStore:      store,
		logger:           options.logger,
	}, nil
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}
