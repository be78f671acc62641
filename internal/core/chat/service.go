package chat

import (
	"context"
	"log/slog"
	"strings"
)

// DefaultTopK は検索件数未指定時のデフォルト値
const DefaultTopK = 4

// Service はRAGベースのストリーミング回答生成を提供する
type Service struct {
	retriever    Retriever
	completer    Completer
	defaultModel string
	defaultTopK  int
	tokenBudget  int
	tokens       *TokenCounter
	logger       *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithChatLogger は Service にロガーを設定する
func WithChatLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithContextTokenBudget はコンテキストのトークン予算を上書きする
func WithContextTokenBudget(budget int) ServiceOption {
	return func(s *Service) {
		if budget > 0 {
			s.tokenBudget = budget
		}
	}
}

// WithDefaultTopK は検索件数のデフォルト値を上書きする
func WithDefaultTopK(topK int) ServiceOption {
	return func(s *Service) {
		if topK > 0 {
			s.defaultTopK = topK
		}
	}
}

// NewService は新しいServiceを作成する
func NewService(retriever Retriever, completer Completer, defaultModel string, opts ...ServiceOption) *Service {
	svc := &Service{
		retriever:    retriever,
		completer:    completer,
		defaultModel: defaultModel,
		defaultTopK:  DefaultTopK,
		tokenBudget:  DefaultContextTokenBudget,
		tokens:       NewTokenCounter(),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// StreamAnswer は回答生成イベントのチャネルを返す。イベントは
// token(0回以上) → sources(1回) → complete_text(1回) の順で流れ、
// 失敗時はerrorイベントを最後にチャネルが閉じられる。
// コンテキストのキャンセルで生成は停止する。
func (s *Service) StreamAnswer(ctx context.Context, params AnswerParams) <-chan Event {
	events := make(chan Event)
	go s.streamAnswer(ctx, params, events)
	return events
}

func (s *Service) streamAnswer(ctx context.Context, params AnswerParams, events chan<- Event) {
	defer close(events)

	emit := func(event Event) bool {
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	topK := params.TopK.OrElse(s.defaultTopK)
	hits, err := s.retriever.Retrieve(ctx, params.Message, topK)
	if err != nil {
		emit(Event{Type: EventError, Err: err})
		return
	}

	contextText, sources := buildContext(hits, s.tokens, s.tokenBudget)
	messages := buildMessages(params.Message, contextText, params.History)

	// 候補モデルは「指定モデル→設定のデフォルトモデル」の順。
	// トークンを1つでも出力した後の失敗はリトライしない（部分回答の重複を避ける）。
	requestedModel := params.Model.OrElse(s.defaultModel)
	candidates := []string{requestedModel}
	if requestedModel != s.defaultModel {
		candidates = append(candidates, s.defaultModel)
	}

	var fullText strings.Builder
	emittedTokens := false

	for i, candidate := range candidates {
		req := CompletionRequest{
			Model:       candidate,
			Temperature: params.Temperature,
			Messages:    messages,
		}

		err := s.completer.StreamCompletion(ctx, req, func(token string) error {
			if token == "" {
				return nil
			}
			emittedTokens = true
			fullText.WriteString(token)
			if !emit(Event{Type: EventToken, Token: token}) {
				return ctx.Err()
			}
			return nil
		})

		if err == nil && emittedTokens {
			break
		}
		if err == nil {
			// 例外なしでトークンが1つも出なかった場合も次の候補を試す
			if i < len(candidates)-1 {
				s.logger.Warn("chat model produced no tokens; falling back",
					"model", candidate,
					"fallback", candidates[i+1],
				)
				continue
			}
			break
		}

		if ctx.Err() != nil {
			return
		}
		if emittedTokens || i == len(candidates)-1 {
			emit(Event{Type: EventError, Err: err})
			return
		}

		s.logger.Warn("chat model failed; falling back",
			"model", candidate,
			"fallback", candidates[i+1],
			"error", err,
		)
	}

	if !emit(Event{Type: EventSources, Sources: sources}) {
		return
	}
	emit(Event{Type: EventCompleteText, Text: fullText.String()})
}
