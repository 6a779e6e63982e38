package parser

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

//go:embed content/keywords.json
var defaultKeywordsJSON []byte

// Keywords drives classification. Expense groups are tried in order and the
// first group with a matching keyword wins.
type Keywords struct {
	Income  []string           `json:"income" koanf:"income"`
	Salary  []string           `json:"salary" koanf:"salary"`
	Expense []CategoryKeywords `json:"expense" koanf:"expense"`
}

// CategoryKeywords maps a category label to the words that select it.
type CategoryKeywords struct {
	Category string   `json:"category" koanf:"category"`
	Keywords []string `json:"keywords" koanf:"keywords"`
}

// DefaultKeywords returns the built-in keyword set.
func DefaultKeywords() Keywords {
	var kw Keywords
	if err := json.Unmarshal(defaultKeywordsJSON, &kw); err != nil {
		panic(fmt.Sprintf("parser: embedded keywords are invalid: %v", err))
	}
	return kw
}

// LoadKeywords reads a YAML file and overlays it on the defaults. Sections
// missing from the file keep their default values.
//
//	income: [給与, 入金]
//	expense:
//	  - category: 食費
//	    keywords: [ランチ, 昼食]
func LoadKeywords(path string) (Keywords, error) {
	kw := DefaultKeywords()
	if path == "" {
		return kw, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Keywords{}, fmt.Errorf("loading keywords file %s: %w", path, err)
	}

	var override Keywords
	if err := k.UnmarshalWithConf("", &override, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Keywords{}, fmt.Errorf("parsing keywords file %s: %w", path, err)
	}

	if len(override.Income) > 0 {
		kw.Income = override.Income
	}
	if len(override.Salary) > 0 {
		kw.Salary = override.Salary
	}
	if len(override.Expense) > 0 {
		kw.Expense = override.Expense
	}
	return kw, nil
}
