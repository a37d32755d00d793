// Package query turns a caller-supplied free-text hint into a structured
// request the tool loader can rank against: normalized text, keywords, an
// inferred action/domain, a confidence score, and an enhanced BM25 query.
package query

import (
	"sort"
	"strings"
)

// Action is one of a fixed, closed set of inferred intents.
type Action string

const (
	ActionSend   Action = "send"
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Domain is one of a fixed, closed set of inferred subject areas.
type Domain string

const (
	DomainCommunication Domain = "communication"
	DomainDatabase      Domain = "database"
	DomainFilesystem    Domain = "filesystem"
	DomainDevelopment   Domain = "development"
	DomainWeb           Domain = "web"
	DomainAI            Domain = "ai"
	DomainOther         Domain = "other"
)

// domainOrder fixes the declaration order used to break domain-score ties.
var domainOrder = []Domain{
	DomainCommunication,
	DomainDatabase,
	DomainFilesystem,
	DomainDevelopment,
	DomainWeb,
	DomainAI,
}

// domainVocabulary maps each non-"other" domain to the terms counted toward
// its match score. "other" is never scored directly; it is the fallback when
// no domain accumulates any matches.
var domainVocabulary = map[Domain][]string{
	DomainCommunication: {"email", "mail", "message", "chat", "slack", "sms", "notify", "notification", "send"},
	DomainDatabase:      {"database", "sql", "query", "table", "row", "record", "schema", "index", "db"},
	DomainFilesystem:    {"file", "directory", "folder", "path", "disk", "read", "write", "save", "load"},
	DomainDevelopment:   {"code", "build", "compile", "test", "debug", "git", "repo", "deploy", "lint"},
	DomainWeb:           {"http", "url", "web", "browser", "page", "request", "response", "api", "fetch"},
	DomainAI:            {"model", "llm", "prompt", "embedding", "inference", "agent", "completion", "token"},
}

// actionSynonyms maps synonym terms onto their canonical action verb.
var actionSynonyms = map[string]Action{
	"create": ActionWrite,
	"update": ActionWrite,
	"modify": ActionWrite,
	"add":    ActionWrite,
	"insert": ActionWrite,
	"write":  ActionWrite,
	"get":    ActionRead,
	"fetch":  ActionRead,
	"query":  ActionRead,
	"list":   ActionRead,
	"find":   ActionRead,
	"search": ActionRead,
	"read":   ActionRead,
	"remove": ActionDelete,
	"destroy": ActionDelete,
	"delete":  ActionDelete,
	"send":    ActionSend,
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "to": {}, "in": {}, "on": {}, "for": {},
	"and": {}, "or": {}, "is": {}, "are": {}, "be": {}, "with": {}, "that": {}, "this": {},
	"it": {}, "at": {}, "by": {}, "as": {}, "from": {}, "can": {}, "you": {}, "me": {},
}

// Result is the structured output of Process.
type Result struct {
	Normalized    string
	Keywords      []string
	Action        Action
	Domain        Domain
	Confidence    float64
	EnhancedQuery string
}

// Process normalizes a free-text hint and infers action, domain, and
// confidence against the fixed vocabularies above.
func Process(raw string) Result {
	normalized := normalize(raw)
	keywords := extractKeywords(normalized)

	action, actionMatched := inferAction(keywords)
	domain, domainScore, domainTerms := inferDomain(keywords)

	confidence := 0.0
	if actionMatched {
		confidence += 0.3
	}
	if domainScore > 0 {
		confidence += 0.5
	}
	entityComponent := float64(len(keywords)) / 3.0
	if entityComponent > 1 {
		entityComponent = 1
	}
	confidence += 0.2 * entityComponent

	return Result{
		Normalized:    normalized,
		Keywords:      keywords,
		Action:        action,
		Domain:        domain,
		Confidence:    confidence,
		EnhancedQuery: buildEnhancedQuery(normalized, domainTerms, action),
	}
}

func normalize(raw string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	return strings.Join(fields, " ")
}

func extractKeywords(normalized string) []string {
	if normalized == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Fields(normalized) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func inferAction(keywords []string) (Action, bool) {
	for _, kw := range keywords {
		if a, ok := actionSynonyms[kw]; ok {
			return a, true
		}
	}
	if len(keywords) > 0 {
		return ActionRead, false
	}
	return ActionRead, false
}

// inferDomain counts keyword matches against each domain's vocabulary and
// returns the highest scorer, its score, and the matched terms (ranked by
// frequency, for use in the enhanced query). Ties break by domainOrder.
func inferDomain(keywords []string) (Domain, int, []string) {
	scores := make(map[Domain]int, len(domainOrder))
	termHits := make(map[Domain]map[string]int, len(domainOrder))

	for _, kw := range keywords {
		for _, d := range domainOrder {
			for _, term := range domainVocabulary[d] {
				if kw == term {
					scores[d]++
					if termHits[d] == nil {
						termHits[d] = make(map[string]int)
					}
					termHits[d][term]++
				}
			}
		}
	}

	best := DomainOther
	bestScore := 0
	for _, d := range domainOrder {
		if scores[d] > bestScore {
			best = d
			bestScore = scores[d]
		}
	}
	if bestScore == 0 {
		return DomainOther, 0, nil
	}

	hits := termHits[best]
	terms := make([]string, 0, len(hits))
	for t := range hits {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if hits[terms[i]] == hits[terms[j]] {
			return terms[i] < terms[j]
		}
		return hits[terms[i]] > hits[terms[j]]
	})
	return best, bestScore, terms
}

func buildEnhancedQuery(normalized string, domainTerms []string, action Action) string {
	seen := make(map[string]struct{})
	for _, f := range strings.Fields(normalized) {
		seen[f] = struct{}{}
	}

	parts := []string{normalized}
	added := 0
	for _, term := range domainTerms {
		if added >= 3 {
			break
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		parts = append(parts, term)
		added++
	}

	verb := string(action)
	if _, ok := seen[verb]; !ok {
		parts = append(parts, verb)
	}
	return strings.Join(parts, " ")
}
