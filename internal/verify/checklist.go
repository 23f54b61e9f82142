package verify

import (
	_ "embed"
	"os"
	"regexp"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/docverify/internal/model"
)

//go:embed checklists.yaml
var embeddedChecklists []byte

// Pair names.
const (
	PairInvoicePackingList = "invoice_packing_list"
	PairInvoiceDeclaration = "invoice_declaration"
	PairInvoiceCertificate = "invoice_certificate"
)

// Params are comparator parameters as decoded from YAML.
type Params map[string]any

// String returns the named string parameter or def.
func (p Params) String(key, def string) string {
	if s, ok := p[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Float returns the named numeric parameter or def.
func (p Params) Float(key string, def float64) float64 {
	switch n := p[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return def
}

// Int returns the named integer parameter or def.
func (p Params) Int(key string, def int) int {
	switch n := p[key].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}

// CheckSpec declares one named check: Left is a field on the reference
// record, Right a field on the dependent record.
type CheckSpec struct {
	Name       string `yaml:"name" json:"name"`
	Comparator string `yaml:"comparator" json:"comparator"`
	Left       string `yaml:"left" json:"left"`
	Right      string `yaml:"right" json:"right"`
	Params     Params `yaml:"params,omitempty" json:"params,omitempty"`
}

// CheckList is the ordered checks for one document pair.
type CheckList struct {
	Pair      string        `yaml:"pair" json:"pair"`
	Reference model.DocType `yaml:"reference" json:"reference"`
	Dependent model.DocType `yaml:"dependent" json:"dependent"`
	Checks    []CheckSpec   `yaml:"checks" json:"checks"`
}

var (
	defaultOnce  sync.Once
	defaultLists []CheckList
	defaultErr   error
)

// DefaultCheckLists returns the embedded check lists.
func DefaultCheckLists() ([]CheckList, error) {
	defaultOnce.Do(func() {
		defaultLists, defaultErr = ParseCheckLists(embeddedChecklists)
	})
	return defaultLists, defaultErr
}

// LoadCheckLists reads check lists from a YAML file.
func LoadCheckLists(path string) ([]CheckList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "verify: read check lists %s", path)
	}
	return ParseCheckLists(data)
}

// ParseCheckLists decodes and validates YAML check lists.
func ParseCheckLists(data []byte) ([]CheckList, error) {
	var lists []CheckList
	if err := yaml.Unmarshal(data, &lists); err != nil {
		return nil, eris.Wrap(err, "verify: decode check lists")
	}
	comparators := Comparators()
	seen := make(map[string]bool, len(lists))
	for _, cl := range lists {
		if err := cl.check(comparators); err != nil {
			return nil, err
		}
		if seen[cl.Pair] {
			return nil, eris.Errorf("verify: duplicate pair %q", cl.Pair)
		}
		seen[cl.Pair] = true
	}
	return lists, nil
}

func (cl CheckList) check(comparators map[string]Comparator) error {
	if cl.Pair == "" {
		return eris.New("verify: check list without pair name")
	}
	if model.ParseDocType(string(cl.Reference)) == model.DocUnknown || model.ParseDocType(string(cl.Dependent)) == model.DocUnknown {
		return eris.Errorf("verify: pair %s: unknown document type", cl.Pair)
	}
	if len(cl.Checks) == 0 {
		return eris.Errorf("verify: pair %s has no checks", cl.Pair)
	}
	names := make(map[string]bool, len(cl.Checks))
	for _, c := range cl.Checks {
		if c.Name == "" || c.Left == "" {
			return eris.Errorf("verify: pair %s: check needs a name and a left field", cl.Pair)
		}
		if names[c.Name] {
			return eris.Errorf("verify: pair %s: duplicate check %q", cl.Pair, c.Name)
		}
		names[c.Name] = true
		if _, ok := comparators[c.Comparator]; !ok {
			return eris.Errorf("verify: pair %s check %s: unknown comparator %q", cl.Pair, c.Name, c.Comparator)
		}
		if expr := c.Params.String("pattern", ""); expr != "" {
			if _, err := regexp.Compile(expr); err != nil {
				return eris.Wrapf(err, "verify: pair %s check %s: bad pattern", cl.Pair, c.Name)
			}
		}
	}
	return nil
}
