package chat

import "sync"

// DefaultMaxMessages はセッションごとに保持する最大メッセージ数（5往復分）
const DefaultMaxMessages = 10

// SessionStore はセッションIDごとの会話履歴を保持する。
// 履歴は直近maxMessages件に刈り込まれ、プロセスの生存期間だけ保持される。
// 全セッションを単一のロックで直列化する（想定並行度では粗粒度で十分）。
type SessionStore struct {
	mu          sync.Mutex
	maxMessages int
	sessions    map[string][]Turn
}

// NewSessionStore は新しいSessionStoreを作成する
func NewSessionStore(maxMessages int) *SessionStore {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &SessionStore{
		maxMessages: maxMessages,
		sessions:    map[string][]Turn{},
	}
}

// Get はセッションの履歴のスナップショットを返す
func (s *SessionStore) Get(sessionID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.sessions[sessionID]
	snapshot := make([]Turn, len(history))
	copy(snapshot, history)
	return snapshot
}

// AppendTurn はユーザー発話とアシスタント応答の組を追記し、上限まで刈り込む
func (s *SessionStore) AppendTurn(sessionID, userMessage, assistantMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionID],
		Turn{Role: RoleUser, Content: userMessage},
		Turn{Role: RoleAssistant, Content: assistantMessage},
	)
	if len(history) > s.maxMessages {
		history = history[len(history)-s.maxMessages:]
	}
	s.sessions[sessionID] = history
}
