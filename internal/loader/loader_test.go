package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgemcp/gateway/internal/bm25"
	"github.com/forgemcp/gateway/pkg/models"
)

type fakeCatalog struct {
	tools map[string]*models.ToolDescriptor
}

func (f *fakeCatalog) Get(name string) (*models.ToolDescriptor, bool) {
	t, ok := f.tools[name]
	return t, ok
}

func (f *fakeCatalog) Len() int { return len(f.tools) }

func (f *fakeCatalog) All() []*models.ToolDescriptor {
	out := make([]*models.ToolDescriptor, 0, len(f.tools))
	for _, t := range f.tools {
		out = append(out, t)
	}
	return out
}

type fakeUsageStore struct {
	fail    bool
	entries []*models.UsageLogEntry
}

func (f *fakeUsageStore) RecordUsage(_ context.Context, entry *models.UsageLogEntry) error {
	if f.fail {
		return assert.AnError
	}
	f.entries = append(f.entries, entry)
	return nil
}

func buildCatalogAndIndex() (*fakeCatalog, *bm25.Index) {
	cat := &fakeCatalog{tools: map[string]*models.ToolDescriptor{
		"read_file":  {Name: "read_file", Description: "read contents of a file", Category: "filesystem"},
		"write_file": {Name: "write_file", Description: "write contents to a file", Category: "filesystem"},
		"send_email": {Name: "send_email", Description: "send an email message", Category: "communication"},
	}}
	idx := bm25.New()
	for _, t := range cat.tools {
		idx.AddToolOrReplace(t)
	}
	return cat, idx
}

func TestSelectWithEmptyHintReturnsFullCatalog(t *testing.T) {
	cat, idx := buildCatalogAndIndex()
	l := New(nil)
	l.Pin("read_file")

	sel := l.Select("", idx, cat)
	assert.Equal(t, 1, sel.Meta.Layer)
	assert.Equal(t, []string{"read_file"}, sel.Essential)
	assert.ElementsMatch(t, []string{"send_email", "write_file"}, sel.Relevant)
	assert.Equal(t, 3, sel.AvailableTotal)
}

func TestSelectWithHintExcludesEssentialFromRelevant(t *testing.T) {
	cat, idx := buildCatalogAndIndex()
	l := New(nil)
	l.Pin("read_file")

	sel := l.Select("read a file from disk", idx, cat)
	assert.Equal(t, 2, sel.Meta.Layer)
	assert.NotContains(t, sel.Relevant, "read_file")
}

func TestPinUnpinRoundTrip(t *testing.T) {
	l := New(nil)
	l.Pin("a")
	l.Pin("b")
	assert.ElementsMatch(t, []string{"a", "b"}, l.Essential())
	l.Unpin("a")
	assert.Equal(t, []string{"b"}, l.Essential())
	l.Unpin("does-not-exist")
}

func TestRecordCallBumpsOverlayAndPersists(t *testing.T) {
	cat, _ := buildCatalogAndIndex()
	l := New(nil)
	us := &fakeUsageStore{}

	l.RecordCall(context.Background(), us, &models.UsageLogEntry{ToolName: "read_file", Success: true})
	require.Len(t, us.entries, 1)
	assert.EqualValues(t, 1, l.usageCount("read_file", cat))
}

func TestRecordCallSwallowsPersistenceFailure(t *testing.T) {
	l := New(nil)
	us := &fakeUsageStore{fail: true}
	assert.NotPanics(t, func() {
		l.RecordCall(context.Background(), us, &models.UsageLogEntry{ToolName: "read_file", Success: true})
	})
}

func TestSetMaxLayer2IgnoresNonPositive(t *testing.T) {
	l := New(nil)
	l.SetMaxLayer2(0)
	l.SetMaxLayer2(-5)
	l.SetMaxLayer2(3)
	assert.Equal(t, 3, l.maxLayer2)
}
