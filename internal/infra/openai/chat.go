package openai

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/chaty-backend/internal/core/chat"
)

// DefaultChatModel はモデル未指定時のデフォルトモデル
const DefaultChatModel = "gpt-4o-mini"

// ChatClient は OpenAI Chat Completions APIのストリーミングクライアント
type ChatClient struct {
	client openai.Client
}

type chatClientOptions struct {
	baseURL string
}

// ChatClientOption は ChatClient のオプション設定
type ChatClientOption func(*chatClientOptions)

// WithChatBaseURL はAPIのベースURLを上書きする
func WithChatBaseURL(baseURL string) ChatClientOption {
	return func(o *chatClientOptions) {
		o.baseURL = baseURL
	}
}

// NewChatClient は新しい ChatClient を作成する
func NewChatClient(apiKey string, opts ...ChatClientOption) *ChatClient {
	var options chatClientOptions
	for _, opt := range opts {
		opt(&options)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if options.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(options.baseURL))
	}

	return &ChatClient{
		client: openai.NewClient(clientOpts...),
	}
}

// StreamCompletion は補完トークンをストリーミングし、1トークンごとにonTokenを呼ぶ。
// onTokenがエラーを返した場合はストリームを中断してそのエラーを返す。
func (c *ChatClient) StreamCompletion(ctx context.Context, req chat.CompletionRequest, onToken func(token string) error) error {
	model := req.Model
	if model == "" {
		model = DefaultChatModel
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    toMessageParams(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		token := chunk.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		if err := onToken(token); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return translateError("chat completion", err)
	}
	return nil
}

// toMessageParams は内部メッセージ表現をOpenAIのパラメータ型へ変換する
func toMessageParams(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, message := range messages {
		switch message.Role {
		case chat.RoleSystem:
			params = append(params, openai.SystemMessage(message.Content))
		case chat.RoleAssistant:
			params = append(params, openai.AssistantMessage(message.Content))
		default:
			params = append(params, openai.UserMessage(message.Content))
		}
	}
	return params
}

// インターフェース実装の確認
var _ chat.Completer = (*ChatClient)(nil)
