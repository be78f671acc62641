package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jinford/chaty-backend/internal/interface/httpapi"
)

// shutdownTimeout はグレースフルシャットダウンの猶予時間
const shutdownTimeout = 10 * time.Second

// ServeAction はHTTPサーバを起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(envFile)
	if err != nil {
		return err
	}
	logger := appCtx.Logger()

	// 起動時に一度インジェストを試みる。失敗してもサーバは起動する。
	if result, err := appCtx.Container.IngestService.Ingest(ctx, false); err != nil {
		logger.Warn("startup ingestion failed", slog.String("error", err.Error()))
	} else {
		logger.Info("startup ingestion completed",
			slog.Int("indexed_files", len(result.IndexedFiles)),
			slog.Int("total_chunks_added", result.TotalChunksAdded),
		)
	}

	handler := httpapi.NewHandler(
		appCtx.Container.IngestService,
		appCtx.Container.ChatService,
		appCtx.Container.Sessions,
		appCtx.Config.Storage.RootDir,
		appCtx.Config.Storage.IngestDir,
		httpapi.WithHandlerLogger(logger),
	)
	router := httpapi.NewRouter(handler, appCtx.Config.HTTP.AllowedOrigins)

	server := &http.Server{
		Addr:    appCtx.Config.HTTP.Addr,
		Handler: router,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
