package milvus

import (
	"context"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/application/retrieval"
	"campaign-forge-api/internal/workflow/port"
)

func TestSourcePassagesSchema(t *testing.T) {
	s := SourcePassagesSchema(0)
	assert.Equal(t, CollectionSourcePassages, s.CollectionName)

	byName := make(map[string]*entity.Field, len(s.Fields))
	for _, f := range s.Fields {
		byName[f.Name] = f
	}
	assert.True(t, byName[fieldID].PrimaryKey)
	assert.Equal(t, "1024", byName[fieldVector].TypeParams["dim"])
	assert.Equal(t, entity.FieldTypeInt64, byName[fieldPage].DataType)
	assert.Equal(t, "256", SourcePassagesSchema(256).Fields[1].TypeParams["dim"])
	for _, name := range outputFields {
		assert.Contains(t, byName, name)
	}
}

func TestQuoteString(t *testing.T) {
	assert.Equal(t, `"c1"`, QuoteString("c1"))
	assert.Equal(t, `"a\"b\\c"`, QuoteString(`a"b\c`))
}

func TestTruncateBytes(t *testing.T) {
	assert.Equal(t, "abc", truncateBytes("abc", 5))
	assert.Equal(t, "ab", truncateBytes("abc", 2))
	assert.Equal(t, "a", truncateBytes("a铁", 3))
}

func TestAdapterConversions(t *testing.T) {
	page := 86
	sp := toSourcePassage(&retrieval.VectorPassage{
		ID:    "p1",
		DocID: "phb",
		Scope: port.ScopeRules,
		Source: port.SourceMetadata{
			SourceID: "phb", SourceName: "Player's Handbook", Page: &page,
		},
	})
	assert.Equal(t, int64(86), sp.Page)
	assert.Equal(t, "rules", sp.Scope)

	res := toVectorSearchResult(&SearchResult{ID: "p1", Score: 0.7, SourceName: "PHB", Page: 0})
	assert.Nil(t, res.Source.Page)
	assert.Equal(t, "PHB", res.Source.SourceName)
}

func TestRetrievalVectorRepository_Disabled(t *testing.T) {
	var r *RetrievalVectorRepository
	require.ErrorIs(t, r.EnsurePassagesCollection(context.Background()), retrieval.ErrVectorDisabled)
	_, err := NewRetrievalVectorRepository(nil).SearchPassages(context.Background(), &retrieval.VectorSearchParams{})
	require.ErrorIs(t, err, retrieval.ErrVectorDisabled)
}

func TestClient_CollectionName(t *testing.T) {
	assert.Equal(t, "forge_source_passages", (&Client{prefix: "forge"}).CollectionName("source_passages"))
	assert.Equal(t, "source_passages", (&Client{}).CollectionName("source_passages"))
}
