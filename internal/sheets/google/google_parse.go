package google

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// rowNamespace scopes the deterministic ids of imported rows.
var rowNamespace = uuid.MustParse("5b1f3c6e-8f0a-4c7e-9d2b-6a4e1f0c9b37")

type rowScope struct {
	spreadsheetID string
	sheet         string
	userID        string
}

type columns struct {
	date, category, description, amount, kind int
}

var defaultColumns = columns{date: 0, category: 1, description: 2, amount: 3, kind: 4}

// parseTransactions converts a values matrix into transactions. When the first
// row carries recognised headers the columns are located by name, otherwise
// the default order Date, Category, Description, Amount, Type is assumed.
func parseTransactions(values [][]interface{}, scope rowScope) ([]core.Transaction, int) {
	if len(values) == 0 {
		return nil, 0
	}
	cols, hasHeader := detectColumns(toStrings(values[0]))
	start := 0
	if hasHeader {
		start = 1
	}

	var (
		out     []core.Transaction
		skipped int
	)
	for i := start; i < len(values); i++ {
		row := toStrings(values[i])
		if isBlank(row) {
			continue
		}
		t, err := parseRow(row, cols)
		if err != nil {
			skipped++
			continue
		}
		t.UserID = scope.userID
		// Sheet rows are 1-based.
		t.ID = rowID(scope, i+1, row).String()
		out = append(out, t)
	}
	return out, skipped
}

func detectColumns(header []string) (columns, bool) {
	cols := columns{date: -1, category: -1, description: -1, amount: -1, kind: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date", "data":
			cols.date = i
		case "category", "categoria":
			cols.category = i
		case "description", "descrizione":
			cols.description = i
		case "amount", "importo":
			cols.amount = i
		case "type", "tipo":
			cols.kind = i
		}
	}
	if cols.date == -1 || cols.category == -1 || cols.amount == -1 {
		return defaultColumns, false
	}
	return cols, true
}

func parseRow(row []string, cols columns) (core.Transaction, error) {
	var t core.Transaction
	d, err := core.ParseDate(safeGet(row, cols.date))
	if err != nil {
		return t, err
	}
	amt, err := core.ParseAmount(safeGet(row, cols.amount))
	if err != nil {
		return t, fmt.Errorf("amount %q: %w", safeGet(row, cols.amount), err)
	}
	typ := core.Expense
	if raw := safeGet(row, cols.kind); raw != "" {
		if typ, err = core.ParseTransactionType(raw); err != nil {
			return t, err
		}
	}
	cat := strings.TrimSpace(safeGet(row, cols.category))
	if cat == "" {
		return t, core.ErrEmptyCategory
	}
	t.Date = d
	t.Category = cat
	t.Description = strings.TrimSpace(safeGet(row, cols.description))
	t.Amount = amt
	t.Type = typ
	return t, nil
}

func rowID(scope rowScope, rowNumber int, row []string) uuid.UUID {
	key := strings.Join(append([]string{scope.spreadsheetID, scope.sheet, scope.userID, strconv.Itoa(rowNumber)}, row...), "\x1f")
	return uuid.NewSHA1(rowNamespace, []byte(key))
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case nil:
		default:
			out[i] = fmt.Sprint(x)
		}
	}
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func safeGet(arr []string, idx int) string {
	if idx >= 0 && idx < len(arr) {
		return strings.TrimSpace(arr[idx])
	}
	return ""
}
