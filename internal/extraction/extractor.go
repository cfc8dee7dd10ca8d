package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/minoapp/minosync/internal/domain"
)

// promptTextLimit caps the email text embedded in the prompt, keeping
// requests inside small local models' context windows.
const promptTextLimit = 800

// Extraction failure classes. All of them mean "skip this email"; none is
// fatal to a sync batch.
var (
	ErrNoResponse = errors.New("extraction: no model response")
	ErrNoJSON     = errors.New("extraction: no JSON object in model response")
	ErrBadJSON    = errors.New("extraction: malformed JSON in model response")
	ErrNoAmount   = errors.New("extraction: transaction has no positive amount")
)

// Gateway asks a language model to complete a prompt.
type Gateway interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// RuleLookup resolves a user-taught category for a place name.
type RuleLookup interface {
	CategoryForPlace(ctx context.Context, place string) (string, error)
}

// Transaction is the structured record extracted from one email.
type Transaction struct {
	TransactionDate string `json:"transaction_date"`
	Place           string `json:"place"`
	Amount          int64  `json:"amount"`
	Category        string `json:"category"`
	Type            string `json:"type"`
	RawTextSummary  string `json:"raw_text_summary"`
}

// UnmarshalJSON routes the amount through flexAmount so the tolerant decoding
// applies without leaking the helper type into the exported struct.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	aux := struct {
		Amount flexAmount `json:"amount"`
		*plain
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.Amount = int64(aux.Amount)
	return nil
}

// flexAmount decodes an amount the model may emit as a bare number, a quoted
// number, or a digit string with separators.
type flexAmount int64

func (a *flexAmount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	// Tolerate a decimal point from models that emit "5000.0".
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		s = s[:idx]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("amount %q: %w", s, err)
	}
	*a = flexAmount(n)
	return nil
}

// Extractor builds prompts, parses model output, and applies validation and
// category-rule overrides.
type Extractor struct {
	gateway Gateway
	rules   RuleLookup
	log     zerolog.Logger
}

// NewExtractor wires an extractor to a gateway and a rule source. rules may
// be nil when no rule store is available.
func NewExtractor(gateway Gateway, rules RuleLookup, log zerolog.Logger) *Extractor {
	return &Extractor{gateway: gateway, rules: rules, log: log}
}

// Extract turns a raw email body into a transaction. The reference date
// backfills a missing transaction date. Every failure returns an error the
// caller must treat as "skip this email"; errors never abort a batch.
func (x *Extractor) Extract(ctx context.Context, rawBody string, referenceDate time.Time) (*Transaction, error) {
	text := truncateRunes(ToPlainText(rawBody), promptTextLimit)
	prompt := buildPrompt(text, referenceDate)

	raw, err := x.gateway.Complete(ctx, prompt)
	if err != nil || raw == "" {
		return nil, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}

	cleaned := stripFences(raw)
	obj, ok := firstJSONObject(cleaned)
	if !ok {
		return nil, ErrNoJSON
	}

	var t Transaction
	if err := json.Unmarshal([]byte(obj), &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}

	// Amount is the one field without which a transaction is meaningless,
	// and amounts are never negative. Refund mails the model renders as a
	// negative number are skipped rather than stored.
	if t.Amount <= 0 {
		return nil, ErrNoAmount
	}
	if t.TransactionDate == "" {
		t.TransactionDate = referenceDate.Format(domain.DateTimeLayout)
	}
	if t.Type == "" {
		t.Type = domain.TypeExpense
	}
	if t.Category == "" {
		t.Category = domain.DefaultCategory
	}

	// A user-taught rule is strictly authoritative over the model's guess.
	if x.rules != nil && t.Place != "" {
		ruleCategory, err := x.rules.CategoryForPlace(ctx, t.Place)
		if err != nil {
			x.log.Warn().Err(err).Str("place", t.Place).Msg("rule lookup failed")
		} else if ruleCategory != "" {
			t.Category = ruleCategory
		}
	}

	return &t, nil
}

// stripFences removes markdown code-fence markers the model may emit despite
// instructions.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func buildPrompt(emailText string, referenceDate time.Time) string {
	dateStr := referenceDate.Format("2006-01-02 15:04:05 (Mon)")

	var b strings.Builder
	b.WriteString("You are a financial data parser. Extract transaction details from the email text below and return ONLY valid JSON.\n\n")
	b.WriteString("[Context]\n")
	fmt.Fprintf(&b, "Email Date: %s (Use this year/month if missing)\n\n", dateStr)
	b.WriteString("[Email Text]\n")
	b.WriteString(emailText)
	b.WriteString("\n\n[Rules]\n")
	b.WriteString("- Place: Shop name (Remove '(주)', 'Inc', branch names). Keep original Korean.\n")
	b.WriteString("- Amount: Number only (Remove separators).\n")
	b.WriteString("- Date: YYYY-MM-DD HH:MM:SS format.\n")
	b.WriteString("- Category: [Food, Cafe, Shopping, Transport, Bills, Fixed, Transfer, Medical, Exercise, Others]\n")
	b.WriteString("- Type: 'expense' (default) or 'income'.\n\n")
	b.WriteString("[Output Format]\n")
	b.WriteString(`{
    "transaction_date": "2024-01-01 12:00:00",
    "place": "Starbucks",
    "amount": 5000,
    "category": "Cafe",
    "type": "expense",
    "raw_text_summary": "Summary of transaction..."
}`)
	b.WriteString("\nNO markdown, NO explanation. Just JSON.")
	return b.String()
}
