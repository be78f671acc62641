package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/jinford/chaty-backend/internal/core/ingestion"
)

// BM25のパラメータ（一般的な既定値）
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var tokenPattern = regexp.MustCompile(`\p{L}\p{M}*(?:[\p{L}\p{M}\p{N}'’]*\p{L}\p{M}*)?|\p{N}+`)

// lexicalDoc は字句インデックス内の文書（=チャンク）1件
type lexicalDoc struct {
	source    string
	content   string
	termFreq  map[string]int
	docLength int
}

// lexicalIndex はチャンクストア全体に対するBM25ランキングモデル。
// ベクトル検索が利用できない場合に都度メモリ上で構築される。
type lexicalIndex struct {
	docs      []lexicalDoc
	docFreq   map[string]int
	avgLength float64
}

// newLexicalIndex はチャンクストアの内容から字句インデックスを構築する。
// 構築順はソースパスのソート順で決定的になる。
func newLexicalIndex(store map[string][]ingestion.StoredChunk) *lexicalIndex {
	sources := make([]string, 0, len(store))
	for source := range store {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	idx := &lexicalIndex{
		docFreq: map[string]int{},
	}

	totalLength := 0
	for _, source := range sources {
		for _, chunk := range store[source] {
			tokens := tokenize(chunk.PageContent)
			if len(tokens) == 0 {
				continue
			}
			termFreq := make(map[string]int, len(tokens))
			for _, token := range tokens {
				termFreq[token]++
			}
			for term := range termFreq {
				idx.docFreq[term]++
			}
			idx.docs = append(idx.docs, lexicalDoc{
				source:    source,
				content:   chunk.PageContent,
				termFreq:  termFreq,
				docLength: len(tokens),
			})
			totalLength += len(tokens)
		}
	}

	if len(idx.docs) > 0 {
		idx.avgLength = float64(totalLength) / float64(len(idx.docs))
	}
	return idx
}

// search はクエリに対するBM25スコア上位k件を返す。
// 返却されるSearchHitのスコアはベクトル距離と比較できないため0.0に固定する。
func (idx *lexicalIndex) search(query string, k int) []SearchHit {
	if len(idx.docs) == 0 || k <= 0 {
		return nil
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	type scored struct {
		pos   int
		score float64
	}

	n := float64(len(idx.docs))
	ranked := make([]scored, 0, len(idx.docs))
	for pos, doc := range idx.docs {
		var score float64
		for _, term := range queryTerms {
			tf := doc.termFreq[term]
			if tf == 0 {
				continue
			}
			df := float64(idx.docFreq[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := float64(tf) * (bm25K1 + 1) /
				(float64(tf) + bm25K1*(1-bm25B+bm25B*float64(doc.docLength)/idx.avgLength))
			score += idf * norm
		}
		if score > 0 {
			ranked = append(ranked, scored{pos: pos, score: score})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	hits := make([]SearchHit, 0, len(ranked))
	for _, item := range ranked {
		doc := idx.docs[item.pos]
		hits = append(hits, SearchHit{
			Source:      doc.source,
			PageContent: doc.content,
			Score:       0.0,
		})
	}
	return hits
}

// tokenize はテキストを小文字化して語の列に分解する
func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}
