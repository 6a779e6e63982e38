// Package parser extracts a transaction guess from a free-text chat message
// using keyword matching.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/ArionMiles/kakeibo/pkg/api"
)

// amountPattern matches the first number, allowing thousands separators and
// a decimal part.
var amountPattern = regexp.MustCompile(`\d+(?:,\d{3})*(?:\.\d+)?`)

// Parser classifies messages with a fixed keyword set. It is safe for
// concurrent use.
type Parser struct {
	kw Keywords
}

// New returns a parser using kw.
func New(kw Keywords) *Parser {
	return &Parser{kw: kw}
}

var defaultParser = New(DefaultKeywords())

// Parse classifies text with the built-in keywords.
func Parse(text string) api.ParsedMessage {
	return defaultParser.Parse(text)
}

// Parse classifies text. It never fails: anything unexpected yields an
// expense in the other category with no amount.
func (p *Parser) Parse(text string) (result api.ParsedMessage) {
	defer func() {
		if r := recover(); r != nil {
			result = fallback(text)
		}
	}()

	result = api.ParsedMessage{
		Description: text,
		Amount:      extractAmount(text),
	}

	if containsAny(text, p.kw.Income) {
		result.TransactionType = api.TypeIncome
		result.Category = api.CategoryIncome
		if containsAny(text, p.kw.Salary) {
			result.Category = api.CategorySalary
		}
		return result
	}

	result.TransactionType = api.TypeExpense
	result.Category = api.CategoryOther
	for _, group := range p.kw.Expense {
		if containsAny(text, group.Keywords) {
			result.Category = group.Category
			break
		}
	}
	return result
}

func fallback(text string) api.ParsedMessage {
	return api.ParsedMessage{
		TransactionType: api.TypeExpense,
		Category:        api.CategoryOther,
		Description:     text,
	}
}

// extractAmount returns the first number in text. Full-width digits and
// separators are folded to ASCII first.
func extractAmount(text string) *float64 {
	m := amountPattern.FindString(width.Fold.String(text))
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &f
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}
