package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// IngestAction は取り込みディレクトリをインデックスへ反映するコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	force := cmd.Bool("force")

	appCtx, err := NewAppContext(envFile)
	if err != nil {
		return err
	}

	result, err := appCtx.Container.IngestService.Ingest(ctx, force)
	if err != nil {
		return fmt.Errorf("インジェストに失敗: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
