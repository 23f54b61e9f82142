// Package registry holds the per-document-type extraction schemas.
package registry

import (
	_ "embed"
	"os"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/docverify/internal/model"
)

//go:embed schemas.yaml
var embeddedSchemas []byte

// Registry is an immutable index of document schemas keyed by type.
type Registry struct {
	schemas map[model.DocType]*model.DocumentSchema
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the registry decoded from the embedded schemas. The
// embedded data is decoded once per process.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = Parse(embeddedSchemas)
	})
	return defaultReg, defaultErr
}

// LoadFile reads a YAML schema file with the same shape as the embedded one.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read schema file")
	}
	return Parse(data)
}

// Parse decodes and checks a YAML list of document schemas.
func Parse(data []byte) (*Registry, error) {
	var docs []model.DocumentSchema
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal schemas")
	}
	return New(docs)
}

// New builds a Registry from already-decoded schemas.
func New(docs []model.DocumentSchema) (*Registry, error) {
	r := &Registry{schemas: make(map[model.DocType]*model.DocumentSchema, len(docs))}
	for i := range docs {
		d := docs[i]
		if err := check(&d); err != nil {
			return nil, err
		}
		if _, dup := r.schemas[d.Type]; dup {
			return nil, eris.Errorf("registry: duplicate schema for %s", d.Type)
		}
		r.schemas[d.Type] = &d
	}
	return r, nil
}

func check(d *model.DocumentSchema) error {
	if d.Type == "" || d.Type == model.DocUnknown {
		return eris.Errorf("registry: schema has invalid type %q", d.Type)
	}
	if len(d.Sections) == 0 {
		return eris.Errorf("registry: %s has no sections", d.Type)
	}
	seen := make(map[string]bool)
	for _, s := range d.Sections {
		if s.Name == "" {
			return eris.Errorf("registry: %s has an unnamed section", d.Type)
		}
		if len(s.Fields) == 0 {
			return eris.Errorf("registry: %s/%s has no fields", d.Type, s.Name)
		}
		for _, f := range s.Fields {
			if f.Name == "" {
				return eris.Errorf("registry: %s/%s has an unnamed field", d.Type, s.Name)
			}
			if seen[f.Name] {
				return eris.Errorf("registry: %s field %s declared twice", d.Type, f.Name)
			}
			seen[f.Name] = true
			if !f.Type.Valid() {
				return eris.Errorf("registry: %s field %s has unknown type %q", d.Type, f.Name, f.Type)
			}
			if f.Tier != model.TierCritical && f.Tier != model.TierInformative {
				return eris.Errorf("registry: %s field %s has unknown tier %q", d.Type, f.Name, f.Tier)
			}
		}
	}
	for _, fact := range d.Facts {
		if fact != model.FactLineItems && fact != model.FactSignature {
			return eris.Errorf("registry: %s has unknown fact %q", d.Type, fact)
		}
	}
	for _, o := range d.DateOrder {
		if !seen[o.Before] || !seen[o.After] {
			return eris.Errorf("registry: %s date order references unknown field", d.Type)
		}
	}
	return nil
}

// Lookup returns the schema for dt.
func (r *Registry) Lookup(dt model.DocType) (*model.DocumentSchema, bool) {
	s, ok := r.schemas[dt]
	return s, ok
}

// MustLookup is like Lookup but panics when dt is not registered.
func (r *Registry) MustLookup(dt model.DocType) *model.DocumentSchema {
	s, ok := r.schemas[dt]
	if !ok {
		panic("registry: no schema for " + string(dt))
	}
	return s
}

// Resolve returns the schema for dt, or the fallback schema when dt is
// unknown or unregistered. The returned type is the one actually used.
func (r *Registry) Resolve(dt, fallback model.DocType) (*model.DocumentSchema, model.DocType, error) {
	if s, ok := r.schemas[dt]; ok {
		return s, dt, nil
	}
	if s, ok := r.schemas[fallback]; ok {
		return s, fallback, nil
	}
	return nil, model.DocUnknown, eris.Errorf("registry: no schema for %s and no fallback %s", dt, fallback)
}

// Types returns the registered document types in lexical order.
func (r *Registry) Types() []model.DocType {
	out := make([]model.DocType, 0, len(r.schemas))
	for dt := range r.schemas {
		out = append(out, dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
