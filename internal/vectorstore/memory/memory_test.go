package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-knowledge-go/internal/model"
)

func TestIndex_UpsertOverwritesAndKeepsOrder(t *testing.T) {
	ctx := context.Background()
	idx := New("kb")

	require.NoError(t, idx.Upsert(ctx, []model.IndexRecord{
		{ID: "a", Text: "first", Vector: []float32{1, 0}},
		{ID: "b", Text: "second", Vector: []float32{1, 0}},
	}))
	require.NoError(t, idx.Upsert(ctx, []model.IndexRecord{{ID: "a", Text: "first v2", Vector: []float32{1, 0}}}))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	hits, err := idx.Query(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// 相似度相同按首次写入顺序
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "first v2", hits[0].Text)
	assert.InDelta(t, 0, hits[0].Distance, 1e-9)
}

func TestIndex_QueryRanksAndLimits(t *testing.T) {
	ctx := context.Background()
	idx := New("kb")
	require.NoError(t, idx.Upsert(ctx, []model.IndexRecord{
		{ID: "far", Vector: []float32{0, 1}},
		{ID: "near", Vector: []float32{1, 0.1}},
		{ID: "zero", Vector: []float32{0, 0}},
	}))

	hits, err := idx.Query(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ID)
	assert.InDelta(t, 1, hits[1].Distance, 1e-9)
}

func TestIndex_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New("kb").Query(ctx, []float32{1}, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
