package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"

	"github.com/jinford/chaty-backend/internal/core/chat"
	"github.com/jinford/chaty-backend/internal/core/ingestion"
	"github.com/jinford/chaty-backend/internal/core/provider"
)

// Handler はHTTP APIの各エンドポイントを処理する
type Handler struct {
	ingestService *ingestion.IngestService
	chatService   *chat.Service
	sessions      *chat.SessionStore
	rootDir       string
	ingestDir     string
	logger        *slog.Logger
}

// HandlerOption は Handler のオプション設定
type HandlerOption func(*Handler)

// WithHandlerLogger はロガーを差し替える
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler は新しい Handler を作成する
func NewHandler(
	ingestService *ingestion.IngestService,
	chatService *chat.Service,
	sessions *chat.SessionStore,
	rootDir string,
	ingestDir string,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		ingestService: ingestService,
		chatService:   chatService,
		sessions:      sessions,
		rootDir:       rootDir,
		ingestDir:     ingestDir,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health はヘルスチェックに応答する。バックエンドの状態に依存せず常に200を返す。
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type ingestRequest struct {
	Force bool `json:"force"`
}

// ingestUploadResponse はアップロード結果とインジェスト結果をまとめたレスポンス
type ingestUploadResponse struct {
	UploadedFiles []string          `json:"uploaded_files"`
	RejectedFiles []string          `json:"rejected_files"`
	Ingest        *ingestion.Result `json:"ingest"`
}

// Ingest は取り込みディレクトリ配下のファイルをインデックスへ反映する。
// ボディは省略可能で、省略時は force=false として扱う。
func (h *Handler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body: " + err.Error()})
		return
	}

	// クライアント切断後もインジェストは完了まで走らせる
	ctx := context.WithoutCancel(c.Request.Context())
	result, err := h.ingestService.Ingest(ctx, req.Force)
	if err != nil {
		h.writeIngestError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// IngestUpload はマルチパートで受け取ったファイルを取り込みディレクトリへ保存し、
// 続けて通常のインジェストを実行する。
func (h *Handler) IngestUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid multipart form: " + err.Error()})
		return
	}

	var uploaded []string
	var rejected []string
	for _, fileHeader := range form.File["files"] {
		// パス区切りを含むファイル名はベース名のみ採用する
		name := filepath.Base(filepath.Clean(fileHeader.Filename))
		if name == "" || name == "." || name == string(filepath.Separator) || !ingestion.IsSupportedFile(name) {
			rejected = append(rejected, fileHeader.Filename)
			continue
		}

		dst := filepath.Join(h.ingestDir, name)
		if err := c.SaveUploadedFile(fileHeader, dst); err != nil {
			h.logger.Warn("failed to save uploaded file", slog.String("file", name), slog.String("error", err.Error()))
			rejected = append(rejected, fileHeader.Filename)
			continue
		}

		rel, err := filepath.Rel(h.rootDir, dst)
		if err != nil {
			rel = name
		}
		uploaded = append(uploaded, filepath.ToSlash(rel))
	}

	if len(uploaded) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"detail": "no supported files were uploaded (supported extensions: .txt, .pdf)",
		})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	result, err := h.ingestService.Ingest(ctx, false)
	if err != nil {
		h.writeIngestError(c, err)
		return
	}

	c.JSON(http.StatusOK, ingestUploadResponse{
		UploadedFiles: uploaded,
		RejectedFiles: rejected,
		Ingest:        result,
	})
}

// writeIngestError はインジェスト失敗をHTTPステータスへ対応付ける
func (h *Handler) writeIngestError(c *gin.Context, err error) {
	h.logger.Error("ingestion failed", slog.String("error", err.Error()))

	switch {
	case provider.IsConnection(err):
		c.JSON(http.StatusBadGateway, gin.H{
			"detail": "Could not reach OpenAI API. Check OPENAI_BASE_URL and OPENAI_API_KEY in .env.",
		})
	case provider.IsAuth(err):
		status := provider.StatusOf(err)
		if status == 0 {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{
			"detail": "OpenAI API authentication failed. Verify OPENAI_API_KEY in .env.",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "ingestion failed: " + err.Error()})
	}
}

type chatRequest struct {
	SessionID   string   `json:"session_id" binding:"required"`
	Message     string   `json:"message" binding:"required"`
	TopK        *int     `json:"top_k" binding:"omitempty,min=1,max=20"`
	ChatModel   string   `json:"chat_model"`
	Temperature *float64 `json:"temperature" binding:"omitempty,min=0,max=1"`
}

const defaultChatTemperature = 0.2

// Chat は質問への回答をSSEでストリーミング配信する。
// プロバイダ障害は最後のtokenイベントとして文面で通知し、ストリームは必ずdoneで終える。
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body: " + err.Error()})
		return
	}

	temperature := defaultChatTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	topK := mo.None[int]()
	if req.TopK != nil {
		topK = mo.Some(*req.TopK)
	}
	model := mo.None[string]()
	if req.ChatModel != "" {
		model = mo.Some(req.ChatModel)
	}

	params := chat.AnswerParams{
		Message:     req.Message,
		History:     h.sessions.Get(req.SessionID),
		TopK:        topK,
		Model:       model,
		Temperature: temperature,
	}

	sse := newSSEWriter(c.Writer)
	sse.writeHeaders()

	var fullText string
	for event := range h.chatService.StreamAnswer(c.Request.Context(), params) {
		switch event.Type {
		case chat.EventToken:
			if err := sse.sendEvent("token", gin.H{"text": event.Token}); err != nil {
				return
			}
		case chat.EventSources:
			sources := event.Sources
			if sources == nil {
				sources = []chat.Source{}
			}
			if err := sse.sendEvent("sources", gin.H{"sources": sources}); err != nil {
				return
			}
		case chat.EventCompleteText:
			fullText = event.Text
		case chat.EventError:
			if err := sse.sendEvent("token", gin.H{"text": h.chatErrorMessage(event.Err)}); err != nil {
				return
			}
		}
	}

	if fullText != "" {
		h.sessions.AppendTurn(req.SessionID, req.Message, fullText)
	}

	_ = sse.sendEvent("done", gin.H{})
}

// chatErrorMessage は生成失敗をユーザー向けの文面へ変換する
func (h *Handler) chatErrorMessage(err error) string {
	h.logger.Error("chat generation failed", slog.String("error", err.Error()))

	switch {
	case provider.IsAuth(err):
		return "OpenAI authentication failed. Verify OPENAI_API_KEY in .env."
	case provider.IsConnection(err):
		return "Could not reach OpenAI API. Check OPENAI_BASE_URL in .env."
	default:
		return "Chat generation failed: " + err.Error()
	}
}
