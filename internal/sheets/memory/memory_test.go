package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func TestStoreUpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := New(
		core.Transaction{ID: "1", UserID: "alice", Date: core.NewDate(2024, 1, 3), Category: "Food", Amount: decimal.NewFromInt(-10), Type: core.Expense},
		core.Transaction{ID: "2", UserID: "bob", Date: core.NewDate(2024, 1, 4), Category: "Rent", Amount: decimal.NewFromInt(-500), Type: core.Expense},
	)

	got, err := s.ListTransactions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Food", got[0].Category)

	n, err := s.UpsertTransactions(ctx, []core.Transaction{
		{ID: "1", UserID: "alice", Date: core.NewDate(2024, 1, 3), Category: "Groceries", Amount: decimal.NewFromInt(-12), Type: core.Expense},
		{UserID: "alice", Date: core.NewDate(2024, 2, 1), Category: "Salary", Amount: decimal.NewFromInt(1500), Type: core.Income},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err = s.ListTransactions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Groceries", got[0].Category, "replaced in place")
	assert.NotEmpty(t, got[1].ID)

	assert.Equal(t, []string{"alice", "bob"}, s.Users())
}

func TestStoreRejectsInvalid(t *testing.T) {
	s := New()
	_, err := s.UpsertTransactions(context.Background(), []core.Transaction{
		{ID: "x", UserID: "alice", Date: core.NewDate(2024, 1, 1), Category: "Food", Type: core.Expense},
	})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestNewFromFiles(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFromFiles(dir)
	require.NoError(t, err)
	assert.Empty(t, s.Users(), "missing seed file gives an empty store")

	content := "user_id,date,category,description,amount,type\n" +
		"alice,2024-01-05,Food,Groceries,\"12,50\",expense\n" +
		"alice,05/02/2024,Rent,Flat,800,Expense\n" +
		"alice,not-a-date,Food,Broken,1,expense\n" +
		"bob,2024-01-01,Salary,Pay,2000,income\n" +
		"short,row\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, SeedFile), []byte(content), 0o644))

	s, err = NewFromFiles(dir)
	require.NoError(t, err)

	alice, err := s.ListTransactions(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.True(t, alice[0].Amount.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, core.NewDate(2024, 2, 5), alice[1].Date)
	assert.Equal(t, core.Expense, alice[1].Type)

	bob, err := s.ListTransactions(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, core.Income, bob[0].Type)
}
