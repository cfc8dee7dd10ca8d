package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/minoapp/minosync/internal/domain"

	_ "modernc.org/sqlite"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite implements Store on a local SQLite database file.
type SQLite struct {
	db *sql.DB // nil when this instance is transaction-scoped
	q  querier
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS expenses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_date TEXT,
		place TEXT,
		location TEXT,
		amount INTEGER,
		category TEXT,
		source TEXT,
		raw_text TEXT,
		analysis_data TEXT,
		latitude REAL,
		longitude REAL,
		is_ocr BOOLEAN DEFAULT 0,
		image_path TEXT,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP,
		type TEXT DEFAULT 'expense',
		normalized_place TEXT,
		is_fixed INTEGER DEFAULT 0,
		email_message_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS category_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		place_keyword TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS graph_nodes (
		id TEXT PRIMARY KEY,
		type TEXT,
		label TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS graph_edges (
		source TEXT,
		target TEXT,
		relation TEXT,
		weight REAL,
		PRIMARY KEY (source, target, relation)
	)`,
	`CREATE TABLE IF NOT EXISTS api_usage (
		api_name TEXT PRIMARY KEY,
		request_count INTEGER DEFAULT 0,
		last_reset TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sync_info (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
}

// Additive column migrations for databases created by older versions. Errors
// about duplicate columns are expected and ignored.
var migrations = []string{
	`ALTER TABLE expenses ADD COLUMN type TEXT DEFAULT 'expense'`,
	`ALTER TABLE expenses ADD COLUMN location TEXT`,
	`ALTER TABLE expenses ADD COLUMN is_fixed INTEGER DEFAULT 0`,
	`ALTER TABLE expenses ADD COLUMN normalized_place TEXT`,
	`ALTER TABLE expenses ADD COLUMN email_message_id TEXT`,
}

// Open opens (or creates) the SQLite database at path and ensures the schema
// exists. WAL mode is enabled for better crash recovery.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between the pipeline's transaction and rule lookups.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	for _, stmt := range migrations {
		_, _ = db.Exec(stmt)
	}

	now := time.Now().Format(time.RFC3339)
	for _, name := range []string{"llm", "kakao"} {
		if _, err := db.Exec(
			`INSERT OR IGNORE INTO api_usage (api_name, request_count, last_reset) VALUES (?, 0, ?)`,
			name, now,
		); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("seed api_usage: %w", err)
		}
	}

	return &SQLite{db: db, q: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithTx implements Store. Nested calls reuse the enclosing transaction.
func (s *SQLite) WithTx(ctx context.Context, fn func(tx Store) error) (err error) {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&SQLite{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Expense operations

const expenseColumns = `id, transaction_date, place, normalized_place, location, amount,
	category, source, type, is_fixed, email_message_id, raw_text, analysis_data,
	latitude, longitude, created_at`

func (s *SQLite) AddExpense(ctx context.Context, e *domain.Expense) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO expenses (
			transaction_date, place, normalized_place, location, amount,
			category, source, type, is_fixed, email_message_id, raw_text, analysis_data,
			latitude, longitude
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TransactionDate, e.Place, e.NormalizedPlace, e.Location, e.Amount,
		orDefault(e.Category, domain.DefaultCategory), e.Source,
		orDefault(e.Type, domain.TypeExpense), boolToInt(e.IsFixed),
		nullString(e.EmailMessageID), e.RawText, e.AnalysisData,
		e.Latitude, e.Longitude,
	)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert expense id: %w", err)
	}
	e.ID = id
	return id, nil
}

func (s *SQLite) GetExpense(ctx context.Context, id int64) (*domain.Expense, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	return scanExpense(row)
}

func (s *SQLite) UpdateExpense(ctx context.Context, e *domain.Expense) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE expenses SET
			transaction_date = ?, place = ?, normalized_place = ?, location = ?,
			amount = ?, category = ?, source = ?, type = ?, is_fixed = ?,
			raw_text = ?, analysis_data = ?, latitude = ?, longitude = ?
		WHERE id = ?`,
		e.TransactionDate, e.Place, e.NormalizedPlace, e.Location,
		e.Amount, orDefault(e.Category, domain.DefaultCategory), e.Source,
		orDefault(e.Type, domain.TypeExpense), boolToInt(e.IsFixed),
		e.RawText, e.AnalysisData, e.Latitude, e.Longitude,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) DeleteExpense(ctx context.Context, id int64) (*domain.Expense, error) {
	old, err := s.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete expense: %w", err)
	}
	return old, nil
}

func (s *SQLite) FindExpenseByMessageID(ctx context.Context, messageID string) (*domain.Expense, error) {
	if messageID == "" {
		return nil, ErrNotFound
	}
	row := s.q.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE email_message_id = ? LIMIT 1`, messageID)
	return scanExpense(row)
}

func (s *SQLite) ListExpenses(ctx context.Context, limit int) ([]*domain.Expense, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses ORDER BY transaction_date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []*domain.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(r rowScanner) (*domain.Expense, error) {
	var (
		e         domain.Expense
		isFixed   int
		msgID     sql.NullString
		createdAt sql.NullString
		txDate    sql.NullString
		place     sql.NullString
		normPlace sql.NullString
		location  sql.NullString
		category  sql.NullString
		source    sql.NullString
		txType    sql.NullString
		rawText   sql.NullString
		analysis  sql.NullString
	)
	err := r.Scan(
		&e.ID, &txDate, &place, &normPlace, &location, &e.Amount,
		&category, &source, &txType, &isFixed, &msgID, &rawText, &analysis,
		&e.Latitude, &e.Longitude, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan expense: %w", err)
	}
	e.TransactionDate = txDate.String
	e.Place = place.String
	e.NormalizedPlace = normPlace.String
	e.Location = location.String
	e.Category = category.String
	e.Source = source.String
	e.Type = txType.String
	e.RawText = rawText.String
	e.AnalysisData = analysis.String
	e.IsFixed = isFixed != 0
	e.EmailMessageID = msgID.String
	if createdAt.Valid {
		if t, err := time.Parse("2006-01-02 15:04:05", createdAt.String); err == nil {
			e.CreatedAt = t
		}
	}
	return &e, nil
}

// Category rules

func (s *SQLite) UpsertRule(ctx context.Context, keyword, category string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT OR REPLACE INTO category_rules (place_keyword, category) VALUES (?, ?)`,
		keyword, category)
	if err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteRule(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM category_rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

func (s *SQLite) ListRules(ctx context.Context) ([]*domain.CategoryRule, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, place_keyword, category, created_at FROM category_rules
		 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []*domain.CategoryRule
	for rows.Next() {
		var (
			r         domain.CategoryRule
			createdAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Keyword, &r.Category, &createdAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if createdAt.Valid {
			if t, err := time.Parse("2006-01-02 15:04:05", createdAt.String); err == nil {
				r.CreatedAt = t
			}
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLite) CategoryForPlace(ctx context.Context, place string) (string, error) {
	if place == "" {
		return "", nil
	}
	// Most recently taught rule wins when several keywords match.
	row := s.q.QueryRowContext(ctx, `
		SELECT category FROM category_rules
		WHERE ? LIKE '%' || LOWER(place_keyword) || '%'
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		strings.ToLower(place))
	var category string
	if err := row.Scan(&category); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("rule lookup: %w", err)
	}
	return category, nil
}

// Association graph

func (s *SQLite) UpsertNode(ctx context.Context, id, nodeType, label string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT OR REPLACE INTO graph_nodes (id, type, label) VALUES (?, ?, ?)`,
		id, nodeType, label)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

func (s *SQLite) EdgeWeight(ctx context.Context, source, target, relation string) (float64, bool, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT weight FROM graph_edges WHERE source = ? AND target = ? AND relation = ?`,
		source, target, relation)
	var w float64
	if err := row.Scan(&w); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("edge weight: %w", err)
	}
	return w, true, nil
}

func (s *SQLite) UpsertEdge(ctx context.Context, source, target, relation string, weight float64) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT OR REPLACE INTO graph_edges (source, target, relation, weight) VALUES (?, ?, ?, ?)`,
		source, target, relation, weight)
	if err != nil {
		return fmt.Errorf("upsert edge: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteEdge(ctx context.Context, source, target, relation string) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM graph_edges WHERE source = ? AND target = ? AND relation = ?`,
		source, target, relation)
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	return nil
}

func (s *SQLite) GraphData(ctx context.Context) ([]Node, []Edge, error) {
	nodeRows, err := s.q.QueryContext(ctx, `SELECT id, type, label FROM graph_nodes`)
	if err != nil {
		return nil, nil, fmt.Errorf("list nodes: %w", err)
	}
	defer nodeRows.Close()

	var nodes []Node
	for nodeRows.Next() {
		var n Node
		if err := nodeRows.Scan(&n.ID, &n.Type, &n.Label); err != nil {
			return nil, nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := nodeRows.Err(); err != nil {
		return nil, nil, err
	}

	edgeRows, err := s.q.QueryContext(ctx, `SELECT source, target, relation, weight FROM graph_edges`)
	if err != nil {
		return nil, nil, fmt.Errorf("list edges: %w", err)
	}
	defer edgeRows.Close()

	var edges []Edge
	for edgeRows.Next() {
		var e Edge
		if err := edgeRows.Scan(&e.Source, &e.Target, &e.Relation, &e.Weight); err != nil {
			return nil, nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return nodes, edges, edgeRows.Err()
}

// Sync info

func (s *SQLite) SyncInfo(ctx context.Context, key string) (string, error) {
	row := s.q.QueryRowContext(ctx, `SELECT value FROM sync_info WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("sync info: %w", err)
	}
	return value, nil
}

func (s *SQLite) SetSyncInfo(ctx context.Context, key, value string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT OR REPLACE INTO sync_info (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("set sync info: %w", err)
	}
	return nil
}

// API usage

func (s *SQLite) IncrementAPIUsage(ctx context.Context, name string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO api_usage (api_name, request_count, last_reset) VALUES (?, 1, ?)
		ON CONFLICT(api_name) DO UPDATE SET request_count = request_count + 1`,
		name, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("increment api usage: %w", err)
	}
	return nil
}

func (s *SQLite) APIUsage(ctx context.Context, name string) (APIUsage, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT api_name, request_count, last_reset FROM api_usage WHERE api_name = ?`, name)
	var (
		u         APIUsage
		lastReset sql.NullString
	)
	if err := row.Scan(&u.Name, &u.Count, &lastReset); err != nil {
		if err == sql.ErrNoRows {
			return APIUsage{}, ErrNotFound
		}
		return APIUsage{}, fmt.Errorf("api usage: %w", err)
	}
	if lastReset.Valid {
		if t, err := time.Parse(time.RFC3339, lastReset.String); err == nil {
			u.LastReset = t
		}
	}
	return u, nil
}

func (s *SQLite) ResetAPIUsage(ctx context.Context, name string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE api_usage SET request_count = 0, last_reset = ? WHERE api_name = ?`,
		time.Now().Format(time.RFC3339), name)
	if err != nil {
		return fmt.Errorf("reset api usage: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
