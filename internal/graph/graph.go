// Package graph maintains the weighted place/category association graph that
// backs spending-pattern insights. Every expense mutation flows through here
// so edge weights always track the live expense set.
package graph

import (
	"context"
	"fmt"

	"github.com/minoapp/minosync/internal/domain"
)

// RelationBelongsTo is the only relation label used by the core pipeline.
const RelationBelongsTo = "belongs_to"

// Node type tags.
const (
	NodePlace    = "place"
	NodeCategory = "category"
)

// Store is the slice of the storage interface the maintainer needs.
type Store interface {
	UpsertNode(ctx context.Context, id, nodeType, label string) error
	EdgeWeight(ctx context.Context, source, target, relation string) (float64, bool, error)
	UpsertEdge(ctx context.Context, source, target, relation string, weight float64) error
	DeleteEdge(ctx context.Context, source, target, relation string) error
}

// NodeID builds the deterministic node id for a type tag and label.
func NodeID(nodeType, label string) string {
	return nodeType + ":" + label
}

// contribution returns the weight an expense adds to its edge. An expense
// recorded without an amount still counts as 1, so every contribution moves
// the weight by at least something.
func contribution(e *domain.Expense) float64 {
	if e.Amount == 0 {
		return 1
	}
	return float64(e.Amount)
}

// AddContribution upserts both nodes and adds the expense's contribution to
// the belongs_to edge between its place and category. It is a no-op when the
// expense lacks a place or category.
func AddContribution(ctx context.Context, s Store, e *domain.Expense) error {
	if e.Place == "" || e.Category == "" {
		return nil
	}

	placeID := NodeID(NodePlace, e.Place)
	categoryID := NodeID(NodeCategory, e.Category)

	if err := s.UpsertNode(ctx, placeID, NodePlace, e.Place); err != nil {
		return fmt.Errorf("upsert place node: %w", err)
	}
	if err := s.UpsertNode(ctx, categoryID, NodeCategory, e.Category); err != nil {
		return fmt.Errorf("upsert category node: %w", err)
	}

	weight, _, err := s.EdgeWeight(ctx, placeID, categoryID, RelationBelongsTo)
	if err != nil {
		return fmt.Errorf("read edge: %w", err)
	}
	if err := s.UpsertEdge(ctx, placeID, categoryID, RelationBelongsTo, weight+contribution(e)); err != nil {
		return fmt.Errorf("write edge: %w", err)
	}
	return nil
}

// RemoveContribution subtracts the expense's contribution from its edge,
// deleting the edge when the weight drops to zero or below. Nodes are never
// pruned: an edge-less node keeps its identity for future contributions.
// Callers undoing an edit or delete must pass the PRE-mutation expense.
func RemoveContribution(ctx context.Context, s Store, e *domain.Expense) error {
	if e.Place == "" || e.Category == "" {
		return nil
	}

	placeID := NodeID(NodePlace, e.Place)
	categoryID := NodeID(NodeCategory, e.Category)

	weight, ok, err := s.EdgeWeight(ctx, placeID, categoryID, RelationBelongsTo)
	if err != nil {
		return fmt.Errorf("read edge: %w", err)
	}
	if !ok {
		return nil
	}

	remaining := weight - contribution(e)
	if remaining <= 0 {
		if err := s.DeleteEdge(ctx, placeID, categoryID, RelationBelongsTo); err != nil {
			return fmt.Errorf("delete edge: %w", err)
		}
		return nil
	}
	if err := s.UpsertEdge(ctx, placeID, categoryID, RelationBelongsTo, remaining); err != nil {
		return fmt.Errorf("write edge: %w", err)
	}
	return nil
}
