package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ArionMiles/kakeibo/pkg/api"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantType string
		wantCat  string
		wantAmt  *float64
	}{
		{"lunch", "昼食 850円", api.TypeExpense, api.CategoryFood, api.Float(850)},
		{"salary", "給与 300000円", api.TypeIncome, api.CategorySalary, api.Float(300000)},
		{"bonus with separators", "ボーナス 1,250,000円", api.TypeIncome, api.CategorySalary, api.Float(1250000)},
		{"generic income", "売上 12000", api.TypeIncome, api.CategoryIncome, api.Float(12000)},
		{"deposit", "入金あり 5000", api.TypeIncome, api.CategoryIncome, api.Float(5000)},
		{"no digits", "no digits here", api.TypeExpense, api.CategoryOther, nil},
		{"empty", "", api.TypeExpense, api.CategoryOther, nil},
		{"decimal", "電車 210.5", api.TypeExpense, api.CategoryTransport, api.Float(210.5)},
		{"first number wins", "タクシー 1200円 チップ 300円", api.TypeExpense, api.CategoryTransport, api.Float(1200)},
		{"full-width digits", "夕食 ３，２００円", api.TypeExpense, api.CategoryFood, api.Float(3200)},
		{"rent", "家賃 80000", api.TypeExpense, api.CategoryHousing, api.Float(80000)},
		{"utilities", "水道代 4500", api.TypeExpense, api.CategoryUtilities, api.Float(4500)},
		{"medical", "病院 3000", api.TypeExpense, api.CategoryMedical, api.Float(3000)},
		{"entertainment", "映画 1800", api.TypeExpense, api.CategoryEntertainment, api.Float(1800)},
		{"shopping", "服 6000", api.TypeExpense, api.CategoryShopping, api.Float(6000)},
		{"gasoline is transport", "ガソリン 5000", api.TypeExpense, api.CategoryTransport, api.Float(5000)},
		{"group order: food before shopping", "弁当 買い物 700", api.TypeExpense, api.CategoryFood, api.Float(700)},
		{"income beats expense words", "給与 食費 1000", api.TypeIncome, api.CategorySalary, api.Float(1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text)

			if got.TransactionType != tt.wantType {
				t.Errorf("type: got %q, want %q", got.TransactionType, tt.wantType)
			}
			if got.Category != tt.wantCat {
				t.Errorf("category: got %q, want %q", got.Category, tt.wantCat)
			}
			if got.Description != tt.text {
				t.Errorf("description: got %q, want raw text %q", got.Description, tt.text)
			}
			switch {
			case got.Amount == nil && tt.wantAmt == nil:
			case got.Amount == nil || tt.wantAmt == nil:
				t.Errorf("amount: got %v, want %v", got.Amount, tt.wantAmt)
			case *got.Amount != *tt.wantAmt:
				t.Errorf("amount: got %v, want %v", *got.Amount, *tt.wantAmt)
			}
		})
	}
}

func TestParseIsDeterministic(t *testing.T) {
	for range 3 {
		a := Parse("昼食 850円")
		b := Parse("昼食 850円")
		if a.Category != b.Category || *a.Amount != *b.Amount {
			t.Fatalf("results differ: %+v vs %+v", a, b)
		}
	}
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{
		"\xff\xfe invalid utf8 123",
		"9999999999999999999999999999999999999999",
		"1,000,000,000,000.123456",
		string(make([]byte, 4096)),
	}
	for _, in := range inputs {
		got := Parse(in)
		if got.TransactionType == "" || got.Category == "" {
			t.Errorf("Parse(%q) returned incomplete result %+v", in, got)
		}
	}
}

func TestLoadKeywordsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	content := `
expense:
  - category: 食費
    keywords: [ランチ]
  - category: 交際費
    keywords: [飲み会]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing keywords file: %v", err)
	}

	kw, err := LoadKeywords(path)
	if err != nil {
		t.Fatalf("LoadKeywords: %v", err)
	}
	if len(kw.Income) == 0 {
		t.Error("income keywords should keep defaults")
	}

	p := New(kw)
	if got := p.Parse("飲み会 4000"); got.Category != "交際費" {
		t.Errorf("custom group: got %q, want 交際費", got.Category)
	}
	if got := p.Parse("ランチ 900"); got.Category != api.CategoryFood {
		t.Errorf("custom food keyword: got %q, want %q", got.Category, api.CategoryFood)
	}
	if got := p.Parse("昼食 900"); got.Category != api.CategoryOther {
		t.Errorf("replaced groups should drop default keywords: got %q", got.Category)
	}
	if got := p.Parse("給与 100"); got.Category != api.CategorySalary {
		t.Errorf("salary defaults kept: got %q", got.Category)
	}
}

func TestLoadKeywordsMissingFile(t *testing.T) {
	if _, err := LoadKeywords(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadKeywordsEmptyPath(t *testing.T) {
	kw, err := LoadKeywords("")
	if err != nil {
		t.Fatalf("LoadKeywords: %v", err)
	}
	if len(kw.Expense) != 7 {
		t.Errorf("expense groups: got %d, want 7", len(kw.Expense))
	}
}
