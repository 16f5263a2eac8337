package google

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

var testScope = rowScope{spreadsheetID: "sheet-1", sheet: "Transactions", userID: "alice"}

func TestParseTransactions_WithHeader(t *testing.T) {
	values := [][]interface{}{
		{"Type", "Date", "Amount", "Category", "Description"},
		{"expense", "2024-01-05", -12.5, "Food", "Groceries"},
		{"Income", "05/02/2024", 2000.0, "Salary", "February"},
		{},
		{"expense", "garbage", 3.0, "Food", "Bad date"},
		{"expense", "2024-03-01", "€ 7,20", "Transport", "Bus"},
	}

	txs, skipped := parseTransactions(values, testScope)
	require.Len(t, txs, 3)
	assert.Equal(t, 1, skipped)

	assert.Equal(t, core.NewDate(2024, 1, 5), txs[0].Date)
	assert.Equal(t, "Food", txs[0].Category)
	assert.Equal(t, "Groceries", txs[0].Description)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("-12.5")))
	assert.Equal(t, core.Expense, txs[0].Type)
	assert.Equal(t, "alice", txs[0].UserID)

	assert.Equal(t, core.Income, txs[1].Type)
	assert.Equal(t, core.NewDate(2024, 2, 5), txs[1].Date)

	assert.True(t, txs[2].Amount.Equal(decimal.RequireFromString("7.2")))
}

func TestParseTransactions_DefaultColumns(t *testing.T) {
	values := [][]interface{}{
		{"2024-01-05", "Food", "Groceries", 10.0},
		{"2024-01-06", "", "No category", 10.0},
		{"2024-01-07", "Rent", "", 800.0, "bogus"},
	}
	txs, skipped := parseTransactions(values, testScope)
	require.Len(t, txs, 1)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, core.Expense, txs[0].Type, "type defaults to expense")
}

func TestParseTransactions_StableIDs(t *testing.T) {
	values := [][]interface{}{
		{"2024-01-05", "Food", "Groceries", 10.0},
		{"2024-01-05", "Food", "Groceries", 10.0},
	}
	a, _ := parseTransactions(values, testScope)
	b, _ := parseTransactions(values, testScope)
	require.Len(t, a, 2)
	assert.Equal(t, a[0].ID, b[0].ID, "same row, same id")
	assert.NotEqual(t, a[0].ID, a[1].ID, "identical rows on different lines stay distinct")

	other, _ := parseTransactions(values, rowScope{spreadsheetID: "sheet-1", sheet: "Transactions", userID: "bob"})
	assert.NotEqual(t, a[0].ID, other[0].ID)
}

func TestParseTransactions_Empty(t *testing.T) {
	txs, skipped := parseTransactions(nil, testScope)
	assert.Empty(t, txs)
	assert.Zero(t, skipped)
}

func TestToStrings(t *testing.T) {
	got := toStrings([]interface{}{1.5, "x", nil, 2.0, true})
	assert.Equal(t, []string{"1.5", "x", "", "2", "true"}, got)
}

func TestQuoteSheet(t *testing.T) {
	assert.Equal(t, "Transactions", quoteSheet("Transactions"))
	assert.Equal(t, "'My Ledger'", quoteSheet("My Ledger"))
	assert.Equal(t, "'Bob''s'", quoteSheet("Bob's"))
}
