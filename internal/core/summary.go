package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// MonthOverview is a compact expense summary for one month.
type MonthOverview struct {
	Month      MonthKey         `json:"month"`
	Total      decimal.Decimal  `json:"total"`
	ByCategory []CategoryAmount `json:"by_category"`
}
