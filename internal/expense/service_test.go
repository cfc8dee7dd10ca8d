package expense

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minoapp/minosync/internal/domain"
	"github.com/minoapp/minosync/internal/graph"
	"github.com/minoapp/minosync/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	return NewService(st, zerolog.Nop()), st
}

func weight(t *testing.T, st store.Store, place, category string) (float64, bool) {
	t.Helper()
	w, ok, err := st.EdgeWeight(context.Background(),
		graph.NodeID(graph.NodePlace, place), graph.NodeID(graph.NodeCategory, category), graph.RelationBelongsTo)
	require.NoError(t, err)
	return w, ok
}

func TestAddValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		expense *domain.Expense
		wantErr error
	}{
		{"missing place", &domain.Expense{Amount: 5000}, ErrNoPlace},
		{"negative amount", &domain.Expense{Place: "A", Amount: -1}, ErrNegativeAmount},
		{"bad date", &domain.Expense{Place: "A", Amount: 1, TransactionDate: "yesterday"}, ErrBadDate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Add(ctx, tc.expense)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestAddNormalizesAndContributes(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, &domain.Expense{
		Place:           "(주)스타벅스 강남점",
		Amount:          5000,
		Category:        "Cafe",
		TransactionDate: "2024-03-15 09:12:00",
	})
	require.NoError(t, err)

	got, err := st.GetExpense(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "(주)스타벅스 강남점", got.Place)
	assert.Equal(t, "스타벅스", got.NormalizedPlace)

	w, ok := weight(t, st, "(주)스타벅스 강남점", "Cafe")
	assert.True(t, ok)
	assert.Equal(t, float64(5000), w)
}

func TestAddDefaultsCategoryAndType(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, &domain.Expense{Place: "GS25", Amount: 3000})
	require.NoError(t, err)

	got, err := st.GetExpense(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCategory, got.Category)
	assert.Equal(t, domain.TypeExpense, got.Type)
}

func TestUpdateMovesGraphContribution(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, &domain.Expense{Place: "스타벅스", Amount: 5000, Category: "Food"})
	require.NoError(t, err)

	// Recategorizing moves the weight between edges using the stored
	// pre-edit values, not the caller's idea of them.
	err = svc.Update(ctx, &domain.Expense{ID: id, Place: "스타벅스", Amount: 6000, Category: "Cafe"})
	require.NoError(t, err)

	_, ok := weight(t, st, "스타벅스", "Food")
	assert.False(t, ok)

	w, ok := weight(t, st, "스타벅스", "Cafe")
	assert.True(t, ok)
	assert.Equal(t, float64(6000), w)
}

func TestUpdateMissingExpense(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Update(context.Background(), &domain.Expense{ID: 9999, Place: "A", Amount: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteWithdrawsContribution(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	id1, err := svc.Add(ctx, &domain.Expense{Place: "스타벅스", Amount: 5000, Category: "Cafe"})
	require.NoError(t, err)
	_, err = svc.Add(ctx, &domain.Expense{Place: "스타벅스", Amount: 3000, Category: "Cafe"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, id1))

	w, ok := weight(t, st, "스타벅스", "Cafe")
	assert.True(t, ok)
	assert.Equal(t, float64(3000), w)

	_, err = st.GetExpense(ctx, id1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteLastExpenseRemovesEdge(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, &domain.Expense{Place: "스타벅스", Amount: 5000, Category: "Cafe"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, id))

	_, ok := weight(t, st, "스타벅스", "Cafe")
	assert.False(t, ok)

	// Nodes stay behind for future contributions.
	nodes, _, err := st.GraphData(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestRememberRule(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RememberRule(ctx, "스타벅스", "Cafe"))

	category, err := st.CategoryForPlace(ctx, "스타벅스 역삼점")
	require.NoError(t, err)
	assert.Equal(t, "Cafe", category)

	assert.Error(t, svc.RememberRule(ctx, "", "Cafe"))
	assert.Error(t, svc.RememberRule(ctx, "스타벅스", ""))
}
