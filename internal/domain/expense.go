// Package domain holds the core data types shared across the sync pipeline.
package domain

import "time"

// DateTimeLayout is the canonical naive local datetime format used for
// transaction dates, both in storage and in LLM prompts.
const DateTimeLayout = "2006-01-02 15:04:05"

// Expense transaction types.
const (
	TypeExpense = "expense"
	TypeIncome  = "income"
)

// DefaultCategory is assigned when no category could be resolved.
const DefaultCategory = "Others"

// ExpenseCategories is the closed set of categories the extractor may assign.
var ExpenseCategories = []string{
	"Food", "Cafe", "Shopping", "Transport", "Bills",
	"Fixed", "Transfer", "Medical", "Exercise", "Others",
}

// IncomeCategories is the closed set of categories for income records.
var IncomeCategories = []string{
	"Salary", "Allowance", "Bonus", "Investment", "Others",
}

// Expense is the canonical transaction record.
type Expense struct {
	ID              int64
	TransactionDate string // DateTimeLayout, naive local time
	Place           string
	NormalizedPlace string // derived, never user-supplied
	Location        string
	Amount          int64 // smallest currency unit, never negative
	Category        string
	Source          string // origin tag, e.g. "Gmail"
	Type            string // TypeExpense or TypeIncome
	IsFixed         bool
	EmailMessageID  string // idempotency key for synced mail, may be empty
	RawText         string
	AnalysisData    string // serialized extraction metadata
	Latitude        *float64
	Longitude       *float64
	CreatedAt       time.Time
}

// CategoryRule maps a place-name keyword to a category. Rules are taught by
// the user and take precedence over model-inferred categories.
type CategoryRule struct {
	ID        int64
	Keyword   string // matched case-insensitively as a substring of the place
	Category  string
	CreatedAt time.Time
}

// IsValidCategory reports whether name is a member of the closed category set
// for the given transaction type.
func IsValidCategory(txType, name string) bool {
	set := ExpenseCategories
	if txType == TypeIncome {
		set = IncomeCategories
	}
	for _, c := range set {
		if c == name {
			return true
		}
	}
	return false
}
