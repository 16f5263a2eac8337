package forecast

import (
	"sort"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// Aggregation is the monthly view of a user's expenses. Months only contains
// months with at least one expense; Pivot has one row per month and one
// column per entry of Categories.
type Aggregation struct {
	Months     []core.MonthKey
	Totals     []float64
	Categories []string
	Pivot      [][]float64
}

func (a *Aggregation) Len() int { return len(a.Months) }

// Aggregate groups expense transactions by calendar month. Amounts are summed
// by magnitude so that sign conventions of the source do not matter.
func Aggregate(txs []core.Transaction) *Aggregation {
	totals := map[core.MonthKey]decimal.Decimal{}
	cells := map[core.MonthKey]map[string]decimal.Decimal{}
	cats := map[string]struct{}{}
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		mk := tx.Date.MonthKey()
		amt := tx.Amount.Abs()
		totals[mk] = totals[mk].Add(amt)
		if cells[mk] == nil {
			cells[mk] = map[string]decimal.Decimal{}
		}
		cells[mk][tx.Category] = cells[mk][tx.Category].Add(amt)
		cats[tx.Category] = struct{}{}
	}

	agg := &Aggregation{}
	for mk := range totals {
		agg.Months = append(agg.Months, mk)
	}
	sort.Slice(agg.Months, func(i, j int) bool { return agg.Months[i].Compare(agg.Months[j]) < 0 })
	for c := range cats {
		agg.Categories = append(agg.Categories, c)
	}
	sort.Strings(agg.Categories)

	agg.Totals = make([]float64, len(agg.Months))
	agg.Pivot = make([][]float64, len(agg.Months))
	for i, mk := range agg.Months {
		agg.Totals[i] = totals[mk].InexactFloat64()
		row := make([]float64, len(agg.Categories))
		for j, c := range agg.Categories {
			row[j] = cells[mk][c].InexactFloat64()
		}
		agg.Pivot[i] = row
	}
	return agg
}

// Overview summarises one month of expenses by category, largest first.
// Amounts are kept as decimals.
func Overview(txs []core.Transaction, month core.MonthKey) core.MonthOverview {
	byCat := map[string]decimal.Decimal{}
	total := decimal.Zero
	for _, tx := range txs {
		if !tx.IsExpense() || tx.Date.MonthKey() != month {
			continue
		}
		amt := tx.Amount.Abs()
		total = total.Add(amt)
		byCat[tx.Category] = byCat[tx.Category].Add(amt)
	}
	out := core.MonthOverview{Month: month, Total: total, ByCategory: []core.CategoryAmount{}}
	for name, amt := range byCat {
		out.ByCategory = append(out.ByCategory, core.CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(out.ByCategory, func(i, j int) bool {
		if c := out.ByCategory[i].Amount.Cmp(out.ByCategory[j].Amount); c != 0 {
			return c > 0
		}
		return out.ByCategory[i].Name < out.ByCategory[j].Name
	})
	return out
}
