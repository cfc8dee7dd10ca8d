// Package store defines the persistence interface consumed by the sync
// pipeline, with SQLite and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/minoapp/minosync/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// Node is a vertex in the association graph.
type Node struct {
	ID    string // "place:<name>" or "category:<name>"
	Type  string
	Label string
}

// Edge is a weighted directed edge; (Source, Target, Relation) is its identity.
type Edge struct {
	Source   string
	Target   string
	Relation string
	Weight   float64
}

// APIUsage tracks request counts against an external API.
type APIUsage struct {
	Name      string
	Count     int64
	LastReset time.Time
}

// Store defines every database operation the pipeline needs. Implementations
// must allow all mutating calls to run inside a WithTx scope.
type Store interface {
	// Expenses
	AddExpense(ctx context.Context, e *domain.Expense) (int64, error)
	GetExpense(ctx context.Context, id int64) (*domain.Expense, error)
	UpdateExpense(ctx context.Context, e *domain.Expense) error
	// DeleteExpense removes the row and returns it as it was stored, so the
	// caller can undo the row's graph contribution.
	DeleteExpense(ctx context.Context, id int64) (*domain.Expense, error)
	FindExpenseByMessageID(ctx context.Context, messageID string) (*domain.Expense, error)
	ListExpenses(ctx context.Context, limit int) ([]*domain.Expense, error)

	// Category rules
	UpsertRule(ctx context.Context, keyword, category string) error
	DeleteRule(ctx context.Context, id int64) error
	ListRules(ctx context.Context) ([]*domain.CategoryRule, error)
	// CategoryForPlace returns the category of the most recently created rule
	// whose keyword is a case-insensitive substring of place, or "" if none.
	CategoryForPlace(ctx context.Context, place string) (string, error)

	// Association graph
	UpsertNode(ctx context.Context, id, nodeType, label string) error
	// EdgeWeight returns the edge weight and whether the edge exists.
	EdgeWeight(ctx context.Context, source, target, relation string) (float64, bool, error)
	UpsertEdge(ctx context.Context, source, target, relation string, weight float64) error
	DeleteEdge(ctx context.Context, source, target, relation string) error
	GraphData(ctx context.Context) ([]Node, []Edge, error)

	// Sync watermark and other key/value sync state
	SyncInfo(ctx context.Context, key string) (string, error)
	SetSyncInfo(ctx context.Context, key, value string) error

	// API usage counters
	IncrementAPIUsage(ctx context.Context, name string) error
	APIUsage(ctx context.Context, name string) (APIUsage, error)
	ResetAPIUsage(ctx context.Context, name string) error

	// WithTx runs fn inside a single atomic transaction. A non-nil error (or a
	// panic) from fn rolls back everything written through tx.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// WatermarkKey is the sync_info key recording the last successful sync time.
const WatermarkKey = "last_sync"
