// Package provider はモデルプロバイダ呼び出しの失敗を閉じたエラー集合として表現する。
// OpenAIアダプタの境界で一度だけ分類し、呼び出し側はKindのみを検査する。
package provider

import (
	"errors"
	"fmt"
)

// ErrorKind はプロバイダエラーの種別
type ErrorKind int

const (
	// KindOther は分類できないプロバイダエラー
	KindOther ErrorKind = iota

	// KindAuth は認証・認可の失敗（401/403相当）
	KindAuth

	// KindConnection はプロバイダへの接続失敗
	KindConnection

	// KindRateLimit はレート制限（429）
	KindRateLimit

	// KindStatus は上記以外のHTTPステータスエラー
	KindStatus
)

// Error はプロバイダ呼び出しの失敗を表す
type Error struct {
	Kind   ErrorKind
	Status int // HTTPステータスコード（不明な場合は0）
	Op     string
	Err    error
}

// Error はerrorインターフェースを実装する
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider: %s failed (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("provider: %s failed: %v", e.Op, e.Err)
}

// Unwrap はラップされた元エラーを返す
func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuth はエラーが認証・認可の失敗かどうかを判定する
func IsAuth(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Kind == KindAuth
}

// IsConnection はエラーがプロバイダへの接続失敗かどうかを判定する
func IsConnection(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Kind == KindConnection
}

// IsRateLimit はエラーがレート制限かどうかを判定する
func IsRateLimit(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Kind == KindRateLimit
}

// StatusOf はプロバイダエラーのHTTPステータスコードを返す（不明な場合は0）
func StatusOf(err error) int {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Status
	}
	return 0
}
