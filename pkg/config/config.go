package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// HTTPサーバ設定
	HTTP HTTPConfig

	// OpenAI設定（Chat + Embeddings用）
	OpenAI OpenAIConfig

	// RAG設定（検索・チャンク化）
	RAG RAGConfig

	// 永続化ファイルの配置
	Storage StorageConfig
}

// HTTPConfig はHTTPサーバ設定
type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
}

// OpenAIConfig はOpenAI API設定（Chat + Embeddings）
type OpenAIConfig struct {
	BaseURL            string
	APIKey             string
	ChatModel          string
	EmbeddingModel     string
	EmbeddingDimension int
}

// RAGConfig は検索とチャンク化の設定
type RAGConfig struct {
	TopK         int
	ChunkSize    int
	ChunkOverlap int
}

// StorageConfig は永続化ファイルの配置設定
type StorageConfig struct {
	RootDir        string // 相対パスの基準ディレクトリ
	IngestDir      string // 取り込み対象の文書ディレクトリ
	VectorDataDir  string // ベクトルコレクションの永続化ディレクトリ
	ManifestPath   string // 取り込みマニフェストのJSONファイル
	ChunkStorePath string // チャンクストアのJSONファイル
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	rootDir := getEnv("ROOT_DIR", ".")

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:           getEnv("HTTP_ADDR", ":8000"),
			AllowedOrigins: splitOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		},
		OpenAI: OpenAIConfig{
			BaseURL:            getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			EmbeddingModel:     getEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
		},
		RAG: RAGConfig{
			TopK:         getEnvAsInt("RAG_TOP_K", 4),
			ChunkSize:    getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 150),
		},
		Storage: StorageConfig{
			RootDir:        rootDir,
			IngestDir:      getEnv("INGEST_DIR", filepath.Join(rootDir, "ingest")),
			VectorDataDir:  getEnv("VECTOR_DATA_DIR", filepath.Join(rootDir, "data", "vectors")),
			ManifestPath:   getEnv("INGEST_MANIFEST_PATH", filepath.Join(rootDir, "data", "ingest_manifest.json")),
			ChunkStorePath: getEnv("CHUNK_STORE_PATH", filepath.Join(rootDir, "data", "chunks.json")),
		},
	}

	return cfg, nil
}

// splitOrigins はカンマ区切りのオリジン一覧を分割する
func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
