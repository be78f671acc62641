package openai

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/openai/openai-go/v3"

	"github.com/jinford/chaty-backend/internal/core/provider"
)

// translateError はOpenAI SDKのエラーをprovider.Errorへ分類する。
// 分類はこの境界で一度だけ行い、呼び出し側はKindのみを検査する。
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := provider.KindStatus
		switch apiErr.StatusCode {
		case 401, 403:
			kind = provider.KindAuth
		case 429:
			kind = provider.KindRateLimit
		}
		return &provider.Error{Kind: kind, Status: apiErr.StatusCode, Op: op, Err: err}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &provider.Error{Kind: provider.KindConnection, Op: op, Err: err}
	}

	return &provider.Error{Kind: provider.KindOther, Op: op, Err: err}
}
