package rag

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"os"
	"sort"
	"strings"
)

// BM25 scoring constants.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// LocalRetriever ranks an in-memory corpus with BM25. The corpus is loaded
// once from a JSONL file at process start; each line is {"text": "..."}.
type LocalRetriever struct {
	docs      []string
	docTokens [][]string
	docFreq   map[string]int
	avgLen    float64
}

type corpusLine struct {
	Text string `json:"text"`
}

// LoadLocalRetriever reads a JSONL corpus file and builds the index.
func LoadLocalRetriever(path string) (*LocalRetriever, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc corpusLine
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc.Text)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return NewLocalRetriever(docs), nil
}

// NewLocalRetriever builds a BM25 index over the given documents.
func NewLocalRetriever(docs []string) *LocalRetriever {
	r := &LocalRetriever{
		docs:    docs,
		docFreq: make(map[string]int),
	}

	var totalLen int
	for _, doc := range docs {
		tokens := tokenize(doc)
		r.docTokens = append(r.docTokens, tokens)
		totalLen += len(tokens)

		seen := make(map[string]bool)
		for _, tok := range tokens {
			if !seen[tok] {
				seen[tok] = true
				r.docFreq[tok]++
			}
		}
	}
	if len(docs) > 0 {
		r.avgLen = float64(totalLen) / float64(len(docs))
	}

	return r
}

// RelevantContext returns the nDocs best-scoring documents joined by
// newlines, best first. No re-ranking beyond BM25 order.
func (r *LocalRetriever) RelevantContext(_ context.Context, query string, nDocs int) (string, error) {
	type scored struct {
		index int
		score float64
	}

	queryTokens := tokenize(query)
	scores := make([]scored, 0, len(r.docs))
	for i := range r.docs {
		s := r.score(queryTokens, i)
		if s > 0 {
			scores = append(scores, scored{index: i, score: s})
		}
	}

	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].score > scores[b].score
	})

	if nDocs < 0 {
		nDocs = 0
	}
	if nDocs > len(scores) {
		nDocs = len(scores)
	}
	picked := make([]string, 0, nDocs)
	for _, s := range scores[:nDocs] {
		picked = append(picked, r.docs[s.index])
	}
	return strings.Join(picked, "\n"), nil
}

func (r *LocalRetriever) score(queryTokens []string, docIndex int) float64 {
	tokens := r.docTokens[docIndex]
	if len(tokens) == 0 {
		return 0
	}

	termFreq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		termFreq[tok]++
	}

	var score float64
	n := float64(len(r.docs))
	docLen := float64(len(tokens))
	for _, tok := range queryTokens {
		tf := float64(termFreq[tok])
		if tf == 0 {
			continue
		}
		df := float64(r.docFreq[tok])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		score += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*docLen/r.avgLen))
	}
	return score
}

func tokenize(text string) []string {
	return strings.Fields(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, text))
}
