package openai

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"

	"github.com/jinford/chaty-backend/internal/core/provider"
)

func TestTranslateError_Nil(t *testing.T) {
	assert.NoError(t, translateError("embeddings", nil))
}

func TestTranslateError_AuthStatus(t *testing.T) {
	for _, status := range []int{401, 403} {
		err := translateError("embeddings", &openai.Error{StatusCode: status})
		assert.True(t, provider.IsAuth(err))
		assert.Equal(t, status, provider.StatusOf(err))
	}
}

func TestTranslateError_RateLimit(t *testing.T) {
	err := translateError("chat completion", &openai.Error{StatusCode: 429})
	assert.True(t, provider.IsRateLimit(err))
	assert.False(t, provider.IsAuth(err))
}

func TestTranslateError_OtherStatus(t *testing.T) {
	err := translateError("embeddings", &openai.Error{StatusCode: 500})
	assert.False(t, provider.IsAuth(err))
	assert.False(t, provider.IsConnection(err))
	assert.Equal(t, 500, provider.StatusOf(err))
}

func TestTranslateError_WrappedAPIErrorIsStillClassified(t *testing.T) {
	wrapped := fmt.Errorf("request failed: %w", &openai.Error{StatusCode: 401})
	assert.True(t, provider.IsAuth(translateError("embeddings", wrapped)))
}

func TestTranslateError_ConnectionFailure(t *testing.T) {
	err := translateError("embeddings", &url.Error{
		Op:  "Post",
		URL: "http://localhost:9999/v1/embeddings",
		Err: errors.New("connection refused"),
	})
	assert.True(t, provider.IsConnection(err))
}

func TestTranslateError_UnknownErrorIsOther(t *testing.T) {
	err := translateError("embeddings", errors.New("something odd"))
	assert.False(t, provider.IsAuth(err))
	assert.False(t, provider.IsConnection(err))
	assert.False(t, provider.IsRateLimit(err))
	assert.Equal(t, 0, provider.StatusOf(err))
}
