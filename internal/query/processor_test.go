package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	r := Process("  Send   an   EMAIL  to  bob  ")
	assert.Equal(t, "send an email to bob", r.Normalized)
}

func TestKeywordsDropStopWordsAndShortTokens(t *testing.T) {
	r := Process("get the file from disk")
	assert.NotContains(t, r.Keywords, "the")
	assert.NotContains(t, r.Keywords, "from")
	assert.Contains(t, r.Keywords, "file")
	assert.Contains(t, r.Keywords, "disk")
}

func TestActionInferenceFromSynonym(t *testing.T) {
	assert.Equal(t, ActionWrite, Process("create a new record").Action)
	assert.Equal(t, ActionRead, Process("find my documents").Action)
	assert.Equal(t, ActionDelete, Process("remove this entry").Action)
	assert.Equal(t, ActionSend, Process("send this message").Action)
}

func TestActionDefaultsToReadWhenNoSynonymMatches(t *testing.T) {
	r := Process("banana pancake syrup")
	assert.Equal(t, ActionRead, r.Action)
}

func TestDomainInferenceCountsVocabularyMatches(t *testing.T) {
	r := Process("send an email message to the team")
	assert.Equal(t, DomainCommunication, r.Domain)
}

func TestDomainDefaultsToOtherWithNoMatches(t *testing.T) {
	r := Process("banana pancake syrup")
	assert.Equal(t, DomainOther, r.Domain)
}

func TestDomainTieBreaksByDeclarationOrder(t *testing.T) {
	// "send" appears in communication vocab once; "read"/"write" each appear
	// once in filesystem vocab - construct a one-all-around tie at score 1
	// between communication (declared first) and filesystem.
	r := Process("send read")
	assert.Equal(t, DomainCommunication, r.Domain)
}

func TestConfidenceCombinesComponents(t *testing.T) {
	full := Process("send an email message now")
	assert.Greater(t, full.Confidence, 0.5)

	empty := Process("")
	assert.Equal(t, 0.0, empty.Confidence)
}

func TestEnhancedQueryAppendsDomainTermsAndAction(t *testing.T) {
	r := Process("send message")
	assert.Contains(t, r.EnhancedQuery, "send message")
	assert.Contains(t, r.EnhancedQuery, string(r.Action))
}
