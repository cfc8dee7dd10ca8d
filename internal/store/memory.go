package store

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minoapp/minosync/internal/domain"
)

// Memory implements Store with in-memory storage. It is used by tests and as
// a throwaway backend when no database path is configured.
type Memory struct {
	mu sync.RWMutex

	expenses      map[int64]*domain.Expense
	nextExpenseID int64

	rules      []*domain.CategoryRule
	nextRuleID int64

	nodes    map[string]Node
	edges    map[edgeKey]float64
	syncInfo map[string]string
	usage    map[string]APIUsage
}

type edgeKey struct {
	source, target, relation string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		expenses: make(map[int64]*domain.Expense),
		nodes:    make(map[string]Node),
		edges:    make(map[edgeKey]float64),
		syncInfo: make(map[string]string),
		usage: map[string]APIUsage{
			"llm":   {Name: "llm", LastReset: time.Now()},
			"kakao": {Name: "kakao", LastReset: time.Now()},
		},
	}
}

// snapshot captures the full store state for transaction rollback.
type memorySnapshot struct {
	expenses      map[int64]*domain.Expense
	nextExpenseID int64
	rules         []*domain.CategoryRule
	nextRuleID    int64
	nodes         map[string]Node
	edges         map[edgeKey]float64
	syncInfo      map[string]string
	usage         map[string]APIUsage
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		expenses:      make(map[int64]*domain.Expense, len(m.expenses)),
		nextExpenseID: m.nextExpenseID,
		rules:         make([]*domain.CategoryRule, len(m.rules)),
		nextRuleID:    m.nextRuleID,
		nodes:         maps.Clone(m.nodes),
		edges:         maps.Clone(m.edges),
		syncInfo:      maps.Clone(m.syncInfo),
		usage:         maps.Clone(m.usage),
	}
	for id, e := range m.expenses {
		cp := *e
		s.expenses[id] = &cp
	}
	for i, r := range m.rules {
		cp := *r
		s.rules[i] = &cp
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.expenses = s.expenses
	m.nextExpenseID = s.nextExpenseID
	m.rules = s.rules
	m.nextRuleID = s.nextRuleID
	m.nodes = s.nodes
	m.edges = s.edges
	m.syncInfo = s.syncInfo
	m.usage = s.usage
}

// WithTx implements Store. The snapshot is taken up front and restored if fn
// fails, giving the same all-or-nothing behavior as a database transaction.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Store) error) (err error) {
	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			m.mu.Lock()
			m.restore(snap)
			m.mu.Unlock()
			panic(p)
		}
	}()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Expense operations

func (m *Memory) AddExpense(ctx context.Context, e *domain.Expense) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextExpenseID++
	cp := *e
	cp.ID = m.nextExpenseID
	if cp.Category == "" {
		cp.Category = domain.DefaultCategory
	}
	if cp.Type == "" {
		cp.Type = domain.TypeExpense
	}
	cp.CreatedAt = time.Now()
	m.expenses[cp.ID] = &cp
	e.ID = cp.ID
	return cp.ID, nil
}

func (m *Memory) GetExpense(ctx context.Context, id int64) (*domain.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.expenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) UpdateExpense(ctx context.Context, e *domain.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.expenses[e.ID]
	if !ok {
		return ErrNotFound
	}
	cp := *e
	if cp.Category == "" {
		cp.Category = domain.DefaultCategory
	}
	if cp.Type == "" {
		cp.Type = domain.TypeExpense
	}
	cp.CreatedAt = old.CreatedAt
	cp.EmailMessageID = old.EmailMessageID
	m.expenses[e.ID] = &cp
	return nil
}

func (m *Memory) DeleteExpense(ctx context.Context, id int64) (*domain.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.expenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.expenses, id)
	cp := *e
	return &cp, nil
}

func (m *Memory) FindExpenseByMessageID(ctx context.Context, messageID string) (*domain.Expense, error) {
	if messageID == "" {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.expenses {
		if e.EmailMessageID == messageID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListExpenses(ctx context.Context, limit int) ([]*domain.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 200
	}
	out := make([]*domain.Expense, 0, len(m.expenses))
	for _, e := range m.expenses {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TransactionDate > out[j].TransactionDate
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Category rules

func (m *Memory) UpsertRule(ctx context.Context, keyword, category string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.rules {
		if strings.EqualFold(r.Keyword, keyword) {
			// Replace semantics: the new rule takes the old one's slot but
			// counts as freshly created for tie-breaking.
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			break
		}
	}
	m.nextRuleID++
	m.rules = append(m.rules, &domain.CategoryRule{
		ID:        m.nextRuleID,
		Keyword:   keyword,
		Category:  category,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *Memory) DeleteRule(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.rules {
		if r.ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) ListRules(ctx context.Context) ([]*domain.CategoryRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.CategoryRule, len(m.rules))
	for i, r := range m.rules {
		cp := *r
		out[len(m.rules)-1-i] = &cp // newest first
	}
	return out, nil
}

func (m *Memory) CategoryForPlace(ctx context.Context, place string) (string, error) {
	if place == "" {
		return "", nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	lower := strings.ToLower(place)
	// Newest rule wins, matching the SQLite ORDER BY created_at DESC.
	for i := len(m.rules) - 1; i >= 0; i-- {
		if strings.Contains(lower, strings.ToLower(m.rules[i].Keyword)) {
			return m.rules[i].Category, nil
		}
	}
	return "", nil
}

// Association graph

func (m *Memory) UpsertNode(ctx context.Context, id, nodeType, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes[id] = Node{ID: id, Type: nodeType, Label: label}
	return nil
}

func (m *Memory) EdgeWeight(ctx context.Context, source, target, relation string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.edges[edgeKey{source, target, relation}]
	return w, ok, nil
}

func (m *Memory) UpsertEdge(ctx context.Context, source, target, relation string, weight float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.edges[edgeKey{source, target, relation}] = weight
	return nil
}

func (m *Memory) DeleteEdge(ctx context.Context, source, target, relation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.edges, edgeKey{source, target, relation})
	return nil
}

func (m *Memory) GraphData(ctx context.Context) ([]Node, []Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]Edge, 0, len(m.edges))
	for k, w := range m.edges {
		edges = append(edges, Edge{Source: k.source, Target: k.target, Relation: k.relation, Weight: w})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return nodes, edges, nil
}

// Sync info

func (m *Memory) SyncInfo(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.syncInfo[key], nil
}

func (m *Memory) SetSyncInfo(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncInfo[key] = value
	return nil
}

// API usage

func (m *Memory) IncrementAPIUsage(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.usage[name]
	if !ok {
		u = APIUsage{Name: name, LastReset: time.Now()}
	}
	u.Count++
	m.usage[name] = u
	return nil
}

func (m *Memory) APIUsage(ctx context.Context, name string) (APIUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.usage[name]
	if !ok {
		return APIUsage{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) ResetAPIUsage(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.usage[name]
	if !ok {
		return ErrNotFound
	}
	u.Count = 0
	u.LastReset = time.Now()
	m.usage[name] = u
	return nil
}
