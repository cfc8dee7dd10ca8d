package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minoapp/minosync/internal/domain"
	"github.com/minoapp/minosync/internal/store"
)

func expense(place, category string, amount int64) *domain.Expense {
	return &domain.Expense{Place: place, Category: category, Amount: amount}
}

func edgeWeight(t *testing.T, s store.Store, place, category string) (float64, bool) {
	t.Helper()
	w, ok, err := s.EdgeWeight(context.Background(), NodeID(NodePlace, place), NodeID(NodeCategory, category), RelationBelongsTo)
	require.NoError(t, err)
	return w, ok
}

func TestAddContribution(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	require.NoError(t, AddContribution(ctx, s, expense("스타벅스", "Cafe", 5000)))

	w, ok := edgeWeight(t, s, "스타벅스", "Cafe")
	assert.True(t, ok)
	assert.Equal(t, float64(5000), w)

	nodes, edges, err := s.GraphData(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Len(t, edges, 1)
	assert.Equal(t, NodeID(NodeCategory, "Cafe"), nodes[0].ID)
	assert.Equal(t, NodeID(NodePlace, "스타벅스"), nodes[1].ID)
	assert.Equal(t, RelationBelongsTo, edges[0].Relation)
}

func TestAddContributionAccumulates(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	require.NoError(t, AddContribution(ctx, s, expense("스타벅스", "Cafe", 5000)))
	require.NoError(t, AddContribution(ctx, s, expense("스타벅스", "Cafe", 3000)))

	w, _ := edgeWeight(t, s, "스타벅스", "Cafe")
	assert.Equal(t, float64(8000), w)
}

func TestZeroAmountContributesOne(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	require.NoError(t, AddContribution(ctx, s, expense("스타벅스", "Cafe", 0)))

	w, _ := edgeWeight(t, s, "스타벅스", "Cafe")
	assert.Equal(t, float64(1), w)
}

func TestAddContributionSkipsIncompleteExpense(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	require.NoError(t, AddContribution(ctx, s, expense("", "Cafe", 5000)))
	require.NoError(t, AddContribution(ctx, s, expense("스타벅스", "", 5000)))

	nodes, edges, err := s.GraphData(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.Empty(t, edges)
}

func TestRemoveContributionReducesWeight(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	require.NoError(t, AddContribution(ctx, s, expense("스타벅스", "Cafe", 5000)))
	require.NoError(t, AddContribution(ctx, s, expense("스타벅스", "Cafe", 3000)))
	require.NoError(t, RemoveContribution(ctx, s, expense("스타벅스", "Cafe", 3000)))

	w, ok := edgeWeight(t, s, "스타벅스", "Cafe")
	assert.True(t, ok)
	assert.Equal(t, float64(5000), w)
}

func TestRemoveContributionDeletesDrainedEdge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	require.NoError(t, AddContribution(ctx, s, expense("스타벅스", "Cafe", 5000)))
	require.NoError(t, RemoveContribution(ctx, s, expense("스타벅스", "Cafe", 5000)))

	_, ok := edgeWeight(t, s, "스타벅스", "Cafe")
	assert.False(t, ok)

	// Nodes outlive their edges.
	nodes, _, err := s.GraphData(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestRemoveContributionBelowZeroDeletesEdge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	require.NoError(t, AddContribution(ctx, s, expense("스타벅스", "Cafe", 2000)))
	require.NoError(t, RemoveContribution(ctx, s, expense("스타벅스", "Cafe", 5000)))

	_, ok := edgeWeight(t, s, "스타벅스", "Cafe")
	assert.False(t, ok)
}

func TestRemoveContributionMissingEdgeIsNoop(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	require.NoError(t, RemoveContribution(ctx, s, expense("스타벅스", "Cafe", 5000)))

	_, edges, err := s.GraphData(ctx)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestNodeID(t *testing.T) {
	assert.Equal(t, "place:스타벅스", NodeID(NodePlace, "스타벅스"))
	assert.Equal(t, "category:Cafe", NodeID(NodeCategory, "Cafe"))
}
