package chat

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/chaty-backend/internal/core/retrieval"
)

const (
	systemPrompt = "You are a helpful assistant for question answering over provided context. " +
		"Use the context to answer. If context is insufficient, say you do not have enough evidence " +
		"and ask for more details. Be concise and factual."

	// noContextPlaceholder はコンテキストが空の場合にプロンプトへ埋め込む文言
	noContextPlaceholder = "No relevant documents found."

	// previewLength はsourcesイベントに含める本文プレビューの文字数
	previewLength = 180

	// DefaultContextTokenBudget はコンテキストブロックに割り当てるトークン数の上限
	DefaultContextTokenBudget = 6000
)

// TokenCounter はプロンプトのトークン数を見積もる。
// cl100k_baseエンコーダが使えない環境では文字数ベースの概算にフォールバックする。
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
}

// NewTokenCounter は新しいTokenCounterを作成する
func NewTokenCounter() *TokenCounter {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{encoder: encoder}
}

// Count はテキストのトークン数を返す
func (t *TokenCounter) Count(text string) int {
	if t == nil || t.encoder == nil {
		// 英文でのおおまかな経験則（4文字 ≒ 1トークン）
		return len(text)/4 + 1
	}
	return len(t.encoder.Encode(text, nil, nil))
}

// buildContext は検索結果からコンテキスト文字列とsourcesペイロードを組み立てる。
// コンテキストブロックはトークン予算内に収まる分だけ採用する（先頭1件は常に含める）。
func buildContext(hits []retrieval.SearchHit, counter *TokenCounter, tokenBudget int) (string, []Source) {
	sources := make([]Source, 0, len(hits))
	var blocks []string
	usedTokens := 0

	for _, hit := range hits {
		block := fmt.Sprintf("Source: %s\n%s", hit.Source, hit.PageContent)
		blockTokens := counter.Count(block)
		if len(blocks) > 0 && usedTokens+blockTokens > tokenBudget {
			break
		}
		blocks = append(blocks, block)
		usedTokens += blockTokens

		sources = append(sources, Source{
			Source:  hit.Source,
			Score:   hit.Score,
			Preview: preview(hit.PageContent),
		})
	}

	if len(blocks) == 0 {
		return noContextPlaceholder, sources
	}
	return strings.Join(blocks, "\n\n"), sources
}

// buildMessages はRAG質問応答用のプロンプトメッセージ列を構築する
func buildMessages(question, contextText string, history []Turn) []Message {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})

	for _, turn := range history {
		messages = append(messages, Message{Role: turn.Role, Content: turn.Content})
	}

	var sb strings.Builder
	sb.WriteString("Question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\nAnswer in the same language used by the user.")

	messages = append(messages, Message{Role: RoleUser, Content: sb.String()})
	return messages
}

// preview は本文の先頭を1行のプレビューに整形する
func preview(content string) string {
	runes := []rune(content)
	if len(runes) > previewLength {
		runes = runes[:previewLength]
	}
	return strings.ReplaceAll(string(runes), "\n", " ")
}
