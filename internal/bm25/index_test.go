package bm25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgemcp/gateway/pkg/models"
)

func seedIndex() *Index {
	idx := New()
	idx.AddToolOrReplace(&models.ToolDescriptor{Name: "read_file", Description: "read contents of a file from disk", Category: "filesystem"})
	idx.AddToolOrReplace(&models.ToolDescriptor{Name: "write_file", Description: "write contents to a file on disk", Category: "filesystem"})
	idx.AddToolOrReplace(&models.ToolDescriptor{Name: "send_email", Description: "send an email message to a recipient", Category: "communication"})
	return idx
}

func TestEmptyQueryReturnsNoResults(t *testing.T) {
	idx := seedIndex()
	assert.Empty(t, idx.Search("", 10, 0))
	assert.Empty(t, idx.Search("   ", 10, 0))
}

func TestSearchRanksByRelevance(t *testing.T) {
	idx := seedIndex()
	matches := idx.Search("read file contents", 10, 0)
	require.NotEmpty(t, matches)
	assert.Equal(t, "read_file", matches[0].Name)
}

func TestSearchRespectsLimit(t *testing.T) {
	idx := seedIndex()
	matches := idx.Search("file", 1, 0)
	assert.Len(t, matches, 1)
}

func TestRemoveDropsFromPostings(t *testing.T) {
	idx := seedIndex()
	idx.Remove("read_file")
	matches := idx.Search("read file", 10, -1000)
	for _, m := range matches {
		assert.NotEqual(t, "read_file", m.Name)
	}
	idx.Remove("does-not-exist") // no-op, must not panic
}

func TestAddOrReplaceOverwritesDocument(t *testing.T) {
	idx := seedIndex()
	idx.AddToolOrReplace(&models.ToolDescriptor{Name: "read_file", Description: "totally different text about email", Category: "communication"})
	stats := idx.Stats()
	assert.Equal(t, 3, stats.Documents)
}

func TestStatsReportsCorpusSize(t *testing.T) {
	idx := seedIndex()
	stats := idx.Stats()
	assert.Equal(t, 3, stats.Documents)
	assert.Greater(t, stats.AvgLength, 0.0)
	assert.ElementsMatch(t, []string{"read_file", "write_file", "send_email"}, stats.Indexed)
}

func TestSetParamsChangesScoring(t *testing.T) {
	idx := seedIndex()
	before := idx.Search("file", 10, 0)
	idx.SetParams(2.5, 0.1)
	after := idx.Search("file", 10, 0)
	require.Len(t, before, 2)
	require.Len(t, after, 2)
	assert.NotEqual(t, before[0].Score, after[0].Score)
}
