package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/chaty-backend/internal/core/retrieval"
)

type stubRetriever struct {
	hits  []retrieval.SearchHit
	err   error
	lastK int
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string, k int) ([]retrieval.SearchHit, error) {
	r.lastK = k
	if r.err != nil {
		return nil, r.err
	}
	return r.hits, nil
}

// scriptedCompleter は呼び出しごとに決められた応答を再生するCompleter
type scriptedCompleter struct {
	script []func(onToken func(string) error) error
	models []string
}

func (c *scriptedCompleter) StreamCompletion(ctx context.Context, req CompletionRequest, onToken func(token string) error) error {
	call := len(c.models)
	c.models = append(c.models, req.Model)
	if call >= len(c.script) {
		return nil
	}
	return c.script[call](onToken)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{AddSource: false}))
}

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for event := range events {
		out = append(out, event)
	}
	return out
}

func answerParams(message string) AnswerParams {
	return AnswerParams{
		Message:     message,
		TopK:        mo.None[int](),
		Model:       mo.None[string](),
		Temperature: 0.2,
	}
}

func TestChatService_EventOrdering(t *testing.T) {
	retriever := &stubRetriever{hits: []retrieval.SearchHit{
		{Source: "ingest/a.txt", PageContent: "alpha content", Score: 0.9},
	}}
	completer := &scriptedCompleter{script: []func(onToken func(string) error) error{
		func(onToken func(string) error) error {
			require.NoError(t, onToken("Hello"))
			require.NoError(t, onToken(" world"))
			return nil
		},
	}}

	svc := NewService(retriever, completer, "default-model", WithChatLogger(discardLogger()))
	events := collectEvents(t, svc.StreamAnswer(context.Background(), answerParams("hi")))

	require.Len(t, events, 4)
	assert.Equal(t, EventToken, events[0].Type)
	assert.Equal(t, "Hello", events[0].Token)
	assert.Equal(t, EventToken, events[1].Type)
	assert.Equal(t, " world", events[1].Token)
	assert.Equal(t, EventSources, events[2].Type)
	require.Len(t, events[2].Sources, 1)
	assert.Equal(t, "ingest/a.txt", events[2].Sources[0].Source)
	assert.Equal(t, EventCompleteText, events[3].Type)
	assert.Equal(t, "Hello world", events[3].Text)
}

func TestChatService_UsesDefaultTopK(t *testing.T) {
	retriever := &stubRetriever{}
	completer := &scriptedCompleter{}

	svc := NewService(retriever, completer, "default-model",
		WithChatLogger(discardLogger()),
		WithDefaultTopK(7),
	)
	collectEvents(t, svc.StreamAnswer(context.Background(), answerParams("hi")))

	assert.Equal(t, 7, retriever.lastK)
}

func TestChatService_RequestedTopKOverridesDefault(t *testing.T) {
	retriever := &stubRetriever{}
	completer := &scriptedCompleter{}

	svc := NewService(retriever, completer, "default-model", WithChatLogger(discardLogger()))

	params := answerParams("hi")
	params.TopK = mo.Some(2)
	collectEvents(t, svc.StreamAnswer(context.Background(), params))

	assert.Equal(t, 2, retriever.lastK)
}

func TestChatService_FallsBackWhenFirstModelFailsBeforeTokens(t *testing.T) {
	retriever := &stubRetriever{}
	completer := &scriptedCompleter{script: []func(onToken func(string) error) error{
		func(onToken func(string) error) error {
			return errors.New("model unavailable")
		},
		func(onToken func(string) error) error {
			return onToken("fallback answer")
		},
	}}

	svc := NewService(retriever, completer, "default-model", WithChatLogger(discardLogger()))

	params := answerParams("hi")
	params.Model = mo.Some("requested-model")
	events := collectEvents(t, svc.StreamAnswer(context.Background(), params))

	assert.Equal(t, []string{"requested-model", "default-model"}, completer.models)

	require.Len(t, events, 3)
	assert.Equal(t, EventToken, events[0].Type)
	assert.Equal(t, "fallback answer", events[0].Token)
	assert.Equal(t, EventSources, events[1].Type)
	assert.Equal(t, EventCompleteText, events[2].Type)
}

func TestChatService_FallsBackWhenFirstModelProducesNoTokens(t *testing.T) {
	retriever := &stubRetriever{}
	completer := &scriptedCompleter{script: []func(onToken func(string) error) error{
		func(onToken func(string) error) error {
			return nil // トークンゼロで正常終了
		},
		func(onToken func(string) error) error {
			return onToken("second try")
		},
	}}

	svc := NewService(retriever, completer, "default-model", WithChatLogger(discardLogger()))

	params := answerParams("hi")
	params.Model = mo.Some("requested-model")
	events := collectEvents(t, svc.StreamAnswer(context.Background(), params))

	assert.Len(t, completer.models, 2)
	require.Len(t, events, 3)
	assert.Equal(t, "second try", events[0].Token)
}

func TestChatService_NoRetryAfterPartialOutput(t *testing.T) {
	retriever := &stubRetriever{}
	completer := &scriptedCompleter{script: []func(onToken func(string) error) error{
		func(onToken func(string) error) error {
			require.NoError(t, onToken("partial"))
			return errors.New("stream interrupted")
		},
		func(onToken func(string) error) error {
			t.Error("second candidate must not be tried after partial output")
			return nil
		},
	}}

	svc := NewService(retriever, completer, "default-model", WithChatLogger(discardLogger()))

	params := answerParams("hi")
	params.Model = mo.Some("requested-model")
	events := collectEvents(t, svc.StreamAnswer(context.Background(), params))

	assert.Len(t, completer.models, 1)
	require.Len(t, events, 2)
	assert.Equal(t, EventToken, events[0].Type)
	assert.Equal(t, EventError, events[1].Type)
	require.Error(t, events[1].Err)
}

func TestChatService_SameRequestedAndDefaultModelIsSingleCandidate(t *testing.T) {
	retriever := &stubRetriever{}
	completer := &scriptedCompleter{script: []func(onToken func(string) error) error{
		func(onToken func(string) error) error {
			return errors.New("model unavailable")
		},
	}}

	svc := NewService(retriever, completer, "default-model", WithChatLogger(discardLogger()))

	params := answerParams("hi")
	params.Model = mo.Some("default-model")
	events := collectEvents(t, svc.StreamAnswer(context.Background(), params))

	assert.Len(t, completer.models, 1)
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
}

func TestChatService_RetrieveFailureEmitsErrorEvent(t *testing.T) {
	retriever := &stubRetriever{err: errors.New("index unavailable")}
	completer := &scriptedCompleter{}

	svc := NewService(retriever, completer, "default-model", WithChatLogger(discardLogger()))
	events := collectEvents(t, svc.StreamAnswer(context.Background(), answerParams("hi")))

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Empty(t, completer.models)
}

func TestChatService_NoHitsStillCompletes(t *testing.T) {
	retriever := &stubRetriever{hits: nil}
	completer := &scriptedCompleter{script: []func(onToken func(string) error) error{
		func(onToken func(string) error) error {
			return onToken("no context answer")
		},
	}}

	svc := NewService(retriever, completer, "default-model", WithChatLogger(discardLogger()))
	events := collectEvents(t, svc.StreamAnswer(context.Background(), answerParams("hi")))

	require.Len(t, events, 3)
	assert.Equal(t, EventSources, events[1].Type)
	assert.Empty(t, events[1].Sources)
	assert.Equal(t, "no context answer", events[2].Text)
}
