package ingestion

import "strings"

const (
	// DefaultChunkSize は1チャンクの目標文字数
	DefaultChunkSize = 1000

	// DefaultChunkOverlap は隣接チャンク間で共有する文字数
	DefaultChunkOverlap = 150
)

// splitSeparators は分割境界の優先順位。
// 段落 → 行 → 文 → 単語の順に試し、最後は文字単位で切る。
var splitSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter はテキストをオーバーラップ付きの固定長チャンクに分割する。
// 同一の入力とパラメータに対して常に同一の結果を返す。
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewSplitter は新しいSplitterを作成する
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Split はテキストをチャンク文字列の列に分割する
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	pieces := s.splitRecursive(text, splitSeparators)
	return s.merge(pieces)
}

// splitRecursive はセパレータの優先順位に従いchunkSize以下の断片へ分割する
func (s *Splitter) splitRecursive(text string, separators []string) []string {
	if len([]rune(text)) <= s.chunkSize {
		return []string{text}
	}

	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	if separator == "" {
		return s.splitRunes(text)
	}

	var pieces []string
	parts := strings.Split(text, separator)
	for i, part := range parts {
		// セパレータを断片の末尾に残し、再結合時に原文を保てるようにする
		if i < len(parts)-1 {
			part += separator
		}
		if part == "" {
			continue
		}
		if len([]rune(part)) <= s.chunkSize {
			pieces = append(pieces, part)
			continue
		}
		pieces = append(pieces, s.splitRecursive(part, rest)...)
	}
	return pieces
}

// splitRunes は境界が見つからないテキストを文字単位で切る
func (s *Splitter) splitRunes(text string) []string {
	runes := []rune(text)
	var pieces []string
	for start := 0; start < len(runes); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// merge は断片を貪欲に連結し、オーバーラップ付きのチャンク列を組み立てる
func (s *Splitter) merge(pieces []string) []string {
	var (
		chunks []string
		window []string
		total  int
	)

	flush := func() {
		if len(window) == 0 {
			return
		}
		chunk := strings.TrimSpace(strings.Join(window, ""))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	for _, piece := range pieces {
		pieceLen := len([]rune(piece))
		if total+pieceLen > s.chunkSize && len(window) > 0 {
			flush()
			// 先頭から削り、直前チャンクの末尾overlap文字分だけ残す
			for total > s.chunkOverlap || (total+pieceLen > s.chunkSize && total > 0) {
				removed := len([]rune(window[0]))
				window = window[1:]
				total -= removed
			}
		}
		window = append(window, piece)
		total += pieceLen
	}
	flush()

	return chunks
}
