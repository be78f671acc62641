package chat

import (
	"context"

	"github.com/samber/mo"

	"github.com/jinford/chaty-backend/internal/core/retrieval"
)

// ロール名はOpenAIのChat API表現に合わせる
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn は会話の1発話を表す
type Turn struct {
	Role    string
	Content string
}

// Message はモデルへ渡すプロンプトの1メッセージを表す
type Message struct {
	Role    string
	Content string
}

// CompletionRequest はストリーミング補完のリクエストを表す
type CompletionRequest struct {
	Model       string
	Temperature float64
	Messages    []Message
}

// Completer はトークン列をストリーミング生成するモデルクライアントのインターフェース。
// onTokenがエラーを返した場合、実装はストリームを中断してそのエラーを返す。
type Completer interface {
	StreamCompletion(ctx context.Context, req CompletionRequest, onToken func(token string) error) error
}

// Retriever は質問文に関連するチャンクを検索するインターフェース
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]retrieval.SearchHit, error)
}

// EventType はストリーミング応答のイベント種別
type EventType string

const (
	// EventToken は増分テキスト1件
	EventToken EventType = "token"

	// EventSources は参照ソースの一覧（1回のみ）
	EventSources EventType = "sources"

	// EventCompleteText は組み立て済みの回答全文（1回のみ）
	EventCompleteText EventType = "complete_text"

	// EventError は生成失敗。以降のイベントは流れない。
	EventError EventType = "error"
)

// Source は回答の根拠となったソース参照を表す
type Source struct {
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// Event はストリーミング応答の1イベントを表す
type Event struct {
	Type    EventType
	Token   string
	Sources []Source
	Text    string
	Err     error
}

// AnswerParams は回答生成のパラメータを表す
type AnswerParams struct {
	Message     string
	History     []Turn
	TopK        mo.Option[int]    // 未指定時は設定のデフォルト値
	Model       mo.Option[string] // 未指定時は設定のチャットモデル
	Temperature float64
}
