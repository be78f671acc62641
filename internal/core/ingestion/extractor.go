package ingestion

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupportedType はサポート外のファイル形式を示すエラー
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrEncryptedPDF は空パスワードで復号できない暗号化PDFを示すエラー
	ErrEncryptedPDF = errors.New("encrypted PDF is not supported")
)

// SupportedExtensions は取り込み対象のファイル拡張子
var SupportedExtensions = map[string]struct{}{
	".txt": {},
	".pdf": {},
}

// IsSupportedFile はパスが取り込み対象の拡張子を持つかを返す
func IsSupportedFile(path string) bool {
	_, ok := SupportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extractor はディスク上のファイルからプレーンテキストを抽出する
type Extractor struct{}

// NewExtractor は新しいExtractorを作成する
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract はファイルからテキストを抽出する。
// プレーンテキストは不正なUTF-8バイトを捨てて読み込み、失敗しない。
// PDFは空パスワードでの復号のみ試み、失敗した場合はErrEncryptedPDFを返す。
func (e *Extractor) Extract(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return e.extractText(path)
	case ".pdf":
		return e.extractPDF(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
	}
}

func (e *Extractor) extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

func (e *Extractor) extractPDF(path string) (text string, err error) {
	// 破損したPDFでライブラリがpanicすることがあるため、ファイル単位で回復する
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return "", ErrEncryptedPDF
		}
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// 読めないページは空ページと同様に読み飛ばす
			continue
		}
		if trimmed := strings.TrimSpace(content); trimmed != "" {
			pages = append(pages, trimmed)
		}
	}

	return strings.Join(pages, "\n\n"), nil
}
