// Package finance adds income/expense queries and aggregation on top of a
// record table.
package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/store"
)

// Total is the result of TotalAmount.
type Total struct {
	TotalAmount     float64 `json:"total_amount"`
	Count           int     `json:"count"`
	TransactionType string  `json:"transaction_type,omitempty"`
}

// MonthlySummary aggregates one calendar month.
type MonthlySummary struct {
	Year         int     `json:"year"`
	Month        int     `json:"month"`
	TotalIncome  float64 `json:"total_income"`
	TotalExpense float64 `json:"total_expense"`
	NetAmount    float64 `json:"net_amount"`
	IncomeCount  int     `json:"income_count"`
	ExpenseCount int     `json:"expense_count"`
	TotalRecords int     `json:"total_records"`
}

// Service answers financial questions about one table.
type Service struct {
	table *store.Table
}

// New wraps table.
func New(table *store.Table) *Service {
	return &Service{table: table}
}

// Table returns the underlying record table.
func (s *Service) Table() *store.Table {
	return s.table
}

// IncomeRecords returns active records tagged as income.
func (s *Service) IncomeRecords(ctx context.Context) ([]api.Record, error) {
	return s.table.QueryByField(ctx, api.AttrTransactionType, api.TypeIncome)
}

// ExpenseRecords returns active records tagged as expense.
func (s *Service) ExpenseRecords(ctx context.Context) ([]api.Record, error) {
	return s.table.QueryByField(ctx, api.AttrTransactionType, api.TypeExpense)
}

// RecordsByCategory returns active records in category.
func (s *Service) RecordsByCategory(ctx context.Context, category string) ([]api.Record, error) {
	return s.table.QueryByField(ctx, api.AttrCategory, category)
}

// TotalAmount sums the amounts of active records, restricted to
// transactionType when it is non-empty. Records without an amount add
// nothing to the sum but are still counted.
func (s *Service) TotalAmount(ctx context.Context, transactionType string) (Total, error) {
	var (
		records []api.Record
		err     error
	)
	if transactionType != "" {
		records, err = s.table.QueryByField(ctx, api.AttrTransactionType, transactionType)
	} else {
		records, err = s.table.List(ctx, false)
	}
	if err != nil {
		return Total{}, err
	}

	return Total{
		TotalAmount:     sum(records).InexactFloat64(),
		Count:           len(records),
		TransactionType: transactionType,
	}, nil
}

// MonthlySummary aggregates active records created in the given month.
func (s *Service) MonthlySummary(ctx context.Context, year, month int) (MonthlySummary, error) {
	lo, hi, err := MonthRange(year, month)
	if err != nil {
		return MonthlySummary{}, err
	}

	records, err := s.table.Scan(ctx, store.And(
		store.Range(api.AttrCreatedAt, lo, hi),
		store.NotExists(api.AttrDeletedAt),
	))
	if err != nil {
		return MonthlySummary{}, err
	}

	var income, expense []api.Record
	for _, r := range records {
		switch api.Deref(r.TransactionType) {
		case api.TypeIncome:
			income = append(income, r)
		case api.TypeExpense:
			expense = append(expense, r)
		}
	}

	incomeTotal := sum(income)
	expenseTotal := sum(expense)

	return MonthlySummary{
		Year:         year,
		Month:        month,
		TotalIncome:  incomeTotal.InexactFloat64(),
		TotalExpense: expenseTotal.InexactFloat64(),
		NetAmount:    incomeTotal.Sub(expenseTotal).InexactFloat64(),
		IncomeCount:  len(income),
		ExpenseCount: len(expense),
		TotalRecords: len(records),
	}, nil
}

// MonthRange returns the half-open [first of month, first of next month)
// bounds as stored timestamps. December rolls over into January.
func MonthRange(year, month int) (string, string, error) {
	if month < 1 || month > 12 {
		return "", "", api.E(api.KindValidation, "finance.monthly_summary",
			fmt.Errorf("month must be between 1 and 12, got %d", month))
	}
	if year < 1 || year > 9999 {
		return "", "", api.E(api.KindValidation, "finance.monthly_summary",
			fmt.Errorf("year out of range: %d", year))
	}

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return api.FormatTimestamp(start), api.FormatTimestamp(end), nil
}

func sum(records []api.Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if r.Amount == nil {
			continue
		}
		total = total.Add(decimal.NewFromFloat(*r.Amount))
	}
	return total
}
