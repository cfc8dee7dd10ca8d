package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	response string
	err      error
	prompt   string
	calls    int
}

func (g *fakeGateway) Complete(ctx context.Context, prompt string) (string, error) {
	g.calls++
	g.prompt = prompt
	return g.response, g.err
}

type fakeRules struct {
	categories map[string]string
	err        error
}

func (r *fakeRules) CategoryForPlace(ctx context.Context, place string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	for keyword, category := range r.categories {
		if strings.Contains(strings.ToLower(place), strings.ToLower(keyword)) {
			return category, nil
		}
	}
	return "", nil
}

var testRef = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestExtractor(g Gateway, r RuleLookup) *Extractor {
	return NewExtractor(g, r, zerolog.Nop())
}

func TestExtractParsesModelJSON(t *testing.T) {
	gw := &fakeGateway{response: `{
		"transaction_date": "2024-03-15 09:12:00",
		"place": "스타벅스 강남점",
		"amount": 5600,
		"category": "Cafe",
		"type": "expense",
		"raw_text_summary": "card approval"
	}`}

	tx, err := newTestExtractor(gw, nil).Extract(context.Background(), "카드승인 5,600원 스타벅스", testRef)
	require.NoError(t, err)
	assert.Equal(t, "스타벅스 강남점", tx.Place)
	assert.Equal(t, int64(5600), int64(tx.Amount))
	assert.Equal(t, "Cafe", tx.Category)
	assert.Equal(t, "expense", tx.Type)
	assert.Equal(t, "2024-03-15 09:12:00", tx.TransactionDate)
}

func TestExtractStripsCodeFences(t *testing.T) {
	gw := &fakeGateway{response: "```json\n{\"place\": \"GS25\", \"amount\": 3000}\n```"}

	tx, err := newTestExtractor(gw, nil).Extract(context.Background(), "body", testRef)
	require.NoError(t, err)
	assert.Equal(t, "GS25", tx.Place)
	assert.Equal(t, int64(3000), int64(tx.Amount))
}

func TestExtractIgnoresCommentaryAroundJSON(t *testing.T) {
	gw := &fakeGateway{response: `Here is the result:
{"place": "이마트", "amount": 42000, "raw_text_summary": "groceries {weekly}"}
Let me know if you need anything else.`}

	tx, err := newTestExtractor(gw, nil).Extract(context.Background(), "body", testRef)
	require.NoError(t, err)
	assert.Equal(t, "이마트", tx.Place)
	assert.Equal(t, "groceries {weekly}", tx.RawTextSummary)
}

func TestExtractMissingAmount(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"absent field", `{"place": "스타벅스"}`},
		{"null amount", `{"place": "스타벅스", "amount": null}`},
		{"zero amount", `{"place": "스타벅스", "amount": 0}`},
		{"negative amount", `{"place": "환불상점", "amount": -5000, "category": "Shopping"}`},
		{"quoted negative amount", `{"place": "환불상점", "amount": "-5,000"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{response: tc.response}
			_, err := newTestExtractor(gw, nil).Extract(context.Background(), "body", testRef)
			assert.ErrorIs(t, err, ErrNoAmount)
		})
	}
}

func TestExtractFailureModes(t *testing.T) {
	tests := []struct {
		name    string
		gateway *fakeGateway
		wantErr error
	}{
		{"gateway error", &fakeGateway{err: errors.New("connection refused")}, ErrNoResponse},
		{"empty response", &fakeGateway{response: ""}, ErrNoResponse},
		{"no json in response", &fakeGateway{response: "I could not find a transaction."}, ErrNoJSON},
		{"malformed json", &fakeGateway{response: `{"place": "A", "amount": [}`}, ErrBadJSON},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestExtractor(tc.gateway, nil).Extract(context.Background(), "body", testRef)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestExtractBackfillsDateAndDefaults(t *testing.T) {
	gw := &fakeGateway{response: `{"place": "스타벅스", "amount": 5000}`}

	tx, err := newTestExtractor(gw, nil).Extract(context.Background(), "body", testRef)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15 10:30:00", tx.TransactionDate)
	assert.Equal(t, "expense", tx.Type)
	assert.Equal(t, "Others", tx.Category)
}

func TestExtractRuleOverridesModelCategory(t *testing.T) {
	gw := &fakeGateway{response: `{"place": "스타벅스 역삼점", "amount": 5000, "category": "Food"}`}
	rules := &fakeRules{categories: map[string]string{"스타벅스": "Cafe"}}

	tx, err := newTestExtractor(gw, rules).Extract(context.Background(), "body", testRef)
	require.NoError(t, err)
	assert.Equal(t, "Cafe", tx.Category)
}

func TestExtractRuleLookupFailureKeepsModelCategory(t *testing.T) {
	gw := &fakeGateway{response: `{"place": "스타벅스", "amount": 5000, "category": "Food"}`}
	rules := &fakeRules{err: errors.New("db locked")}

	tx, err := newTestExtractor(gw, rules).Extract(context.Background(), "body", testRef)
	require.NoError(t, err)
	assert.Equal(t, "Food", tx.Category)
}

func TestExtractTruncatesPromptText(t *testing.T) {
	gw := &fakeGateway{response: `{"place": "A", "amount": 1}`}
	body := strings.Repeat("x", 2000)

	_, err := newTestExtractor(gw, nil).Extract(context.Background(), body, testRef)
	require.NoError(t, err)
	assert.Contains(t, gw.prompt, strings.Repeat("x", promptTextLimit))
	assert.NotContains(t, gw.prompt, strings.Repeat("x", promptTextLimit+1))
}

func TestFlexAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"bare number", `{"amount": 5000}`, 5000},
		{"quoted number", `{"amount": "5000"}`, 5000},
		{"thousands separators", `{"amount": "12,000"}`, 12000},
		{"decimal point dropped", `{"amount": "5000.0"}`, 5000},
		{"null", `{"amount": null}`, 0},
		{"empty string", `{"amount": ""}`, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{response: strings.Replace(tc.input, "}", `, "place": "A"}`, 1)}
			tx, err := newTestExtractor(gw, nil).Extract(context.Background(), "body", testRef)
			if tc.want == 0 {
				assert.ErrorIs(t, err, ErrNoAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, int64(tx.Amount))
		})
	}
}
