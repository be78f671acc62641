package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestEntry はソースファイル1件の取り込み記録を表す。
// DocIDsはそのファイルのチャンクがベクトルインデックスへ永続化された際の識別子で、
// 一度もEmbeddingされていない場合は空になる。
type ManifestEntry struct {
	SHA256 string   `json:"sha256"`
	DocIDs []string `json:"doc_ids"`
}

// Manifest はソースファイルごとの取り込み記録の集合を表す
type Manifest struct {
	Files map[string]ManifestEntry `json:"files"`
}

// ManifestStore は取り込みマニフェストをJSONファイルとして永続化する
type ManifestStore struct {
	path string
}

// NewManifestStore は新しいManifestStoreを作成する
func NewManifestStore(path string) *ManifestStore {
	return &ManifestStore{path: path}
}

// Load はマニフェストを読み込む。ファイルが存在しない場合は空のマニフェストを返す。
func (s *ManifestStore) Load() (*Manifest, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{Files: map[string]ManifestEntry{}}, nil
		}
		return nil, fmt.Errorf("failed to read manifest %s: %w", s.path, err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON %s: %w", s.path, err)
	}
	if manifest.Files == nil {
		manifest.Files = map[string]ManifestEntry{}
	}
	return &manifest, nil
}

// Save はマニフェストをJSONファイルへ書き出す
func (s *ManifestStore) Save(manifest *Manifest) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest dir: %w", err)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", s.path, err)
	}
	return nil
}
