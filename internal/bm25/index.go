// Package bm25 implements an in-memory Okapi BM25 inverted index over the
// live tool catalog. It is a derived projection only: nothing here persists,
// and the index is rebuilt by replaying ToolDescriptors from the store.
package bm25

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/forgemcp/gateway/pkg/models"
)

const (
	defaultK1 = 1.2
	defaultB  = 0.75
)

// Match is one ranked search result.
type Match struct {
	Name  string
	Score float64
}

// Stats summarizes the current index state.
type Stats struct {
	Documents int     `json:"documents"`
	AvgLength float64 `json:"avgLength"`
	Indexed   []string `json:"indexed,omitempty"`
}

type document struct {
	terms  []string
	freq   map[string]int
	length int
}

// Index is a mutex-guarded inverted index keyed by tool name. Safe for
// concurrent use from the provider manager (writes) and gateway (reads).
type Index struct {
	mu         sync.RWMutex
	docs       map[string]*document
	postings   map[string]map[string]int // term -> docName -> freq
	totalTerms int
	k1         float64
	b          float64
}

// New returns an empty index with default BM25 parameters.
func New() *Index {
	return &Index{
		docs:     make(map[string]*document),
		postings: make(map[string]map[string]int),
		k1:       defaultK1,
		b:        defaultB,
	}
}

// SetParams overrides the saturation (k1) and length-normalization (b)
// parameters. Safe to call at any time; affects subsequent searches only.
func (idx *Index) SetParams(k1, b float64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.k1 = k1
	idx.b = b
}

// AddOrReplace inserts or overwrites the document keyed by name, built from
// the already-assembled text. Callers that index tool descriptors should use
// AddToolOrReplace so the name-doubling weighting rule is applied uniformly;
// this lower-level entry point is for other corpora (e.g. the Memory
// Manager's recall index) that build their own document text.
func (idx *Index) AddOrReplace(name, text string) {
	tokens := tokenize(text)

	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(name)

	doc := &document{terms: tokens, freq: freq, length: len(tokens)}
	idx.docs[name] = doc
	idx.totalTerms += doc.length

	for term, count := range freq {
		bucket, ok := idx.postings[term]
		if !ok {
			bucket = make(map[string]int)
			idx.postings[term] = bucket
		}
		bucket[name] = count
	}
}

// AddToolOrReplace indexes a tool descriptor, keyed by name, using the
// name-doubled document construction rule (name counts twice as heavily as
// description/keywords/category).
func (idx *Index) AddToolOrReplace(desc *models.ToolDescriptor) {
	idx.AddOrReplace(desc.Name, buildDocumentText(desc))
}

// Remove deletes the document for name. No-op if absent.
func (idx *Index) Remove(name string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(name)
}

func (idx *Index) removeLocked(name string) {
	doc, ok := idx.docs[name]
	if !ok {
		return
	}
	idx.totalTerms -= doc.length
	for term := range doc.freq {
		bucket := idx.postings[term]
		delete(bucket, name)
		if len(bucket) == 0 {
			delete(idx.postings, term)
		}
	}
	delete(idx.docs, name)
}

// Search tokenizes query and ranks documents by Okapi BM25, recomputing IDF
// from the current corpus. An empty query returns no results: the caller's
// Layer-1 essential set covers that case upstream.
func (idx *Index) Search(query string, limit int, scoreFloor float64) []Match {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docs)
	if n == 0 {
		return nil
	}
	avgLen := float64(idx.totalTerms) / float64(n)

	scores := make(map[string]float64)
	seen := make(map[string]bool)
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		bucket, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := len(bucket)
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		for name, tf := range bucket {
			docLen := float64(idx.docs[name].length)
			denom := float64(tf) + idx.k1*(1-idx.b+idx.b*(docLen/avgLen))
			scores[name] += idf * (float64(tf) * (idx.k1 + 1) / denom)
		}
	}

	matches := make([]Match, 0, len(scores))
	for name, score := range scores {
		if score > scoreFloor {
			matches = append(matches, Match{Name: name, Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].Name < matches[j].Name
		}
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Stats reports corpus size, mean document length, and the indexed tool names.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := len(idx.docs)
	var avg float64
	if n > 0 {
		avg = float64(idx.totalTerms) / float64(n)
	}
	names := make([]string, 0, n)
	for name := range idx.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return Stats{Documents: n, AvgLength: avg, Indexed: names}
}

func buildDocumentText(desc *models.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString(desc.Name)
	b.WriteByte(' ')
	b.WriteString(desc.Name) // duplicated: name carries double weight
	b.WriteByte(' ')
	b.WriteString(desc.Description)
	b.WriteByte(' ')
	b.WriteString(strings.Join(desc.Keywords, " "))
	b.WriteByte(' ')
	b.WriteString(desc.Category)
	return b.String()
}

// tokenize lowercases and splits on non-alphanumeric boundaries. No stemming.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
