package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ChunkStore はソースファイルごとの現在のチャンク一覧をJSONファイルとして永続化する。
// ベクトルインデックスへの格納可否とは独立に常に最新の内容を保持し、
// 字句検索フォールバックのコーパスとして使われる。
type ChunkStore struct {
	path string
}

// NewChunkStore は新しいChunkStoreを作成する
func NewChunkStore(path string) *ChunkStore {
	return &ChunkStore{path: path}
}

// Load はチャンクストアを読み込む。ファイルが存在しない場合は空のマップを返す。
func (s *ChunkStore) Load() (map[string][]StoredChunk, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]StoredChunk{}, nil
		}
		return nil, fmt.Errorf("failed to read chunk store %s: %w", s.path, err)
	}

	var store map[string][]StoredChunk
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("invalid chunk store JSON %s: %w", s.path, err)
	}
	if store == nil {
		store = map[string][]StoredChunk{}
	}
	return store, nil
}

// Save はチャンクストアをJSONファイルへ書き出す
func (s *ChunkStore) Save(store map[string][]StoredChunk) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create chunk store dir: %w", err)
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chunk store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write chunk store %s: %w", s.path, err)
	}
	return nil
}
