// Package generator creates new agents from a catalog of personality
// templates.
package generator

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/agentpulse/pkg/types"
)

//go:embed templates.yaml
var defaultCatalog []byte

// Traits is the trait block of a template.
type Traits struct {
	Formality  float64 `yaml:"formality"`
	Enthusiasm float64 `yaml:"enthusiasm"`
	Depth      float64 `yaml:"depth"`
	Empathy    float64 `yaml:"empathy"`
	Humor      float64 `yaml:"humor"`
	Creativity float64 `yaml:"creativity"`
}

// Template is an agent archetype.
type Template struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Skills        []string `yaml:"skills"`
	TriggerWords  []string `yaml:"trigger_words"`
	ResponseStyle string   `yaml:"response_style"`
	Traits        Traits   `yaml:"traits"`
}

// Personality converts the template traits shifted by offset, clamped.
func (t Template) Personality(offset float64) *types.PersonalityTraits {
	p := &types.PersonalityTraits{
		Formality:  t.Traits.Formality + offset,
		Enthusiasm: t.Traits.Enthusiasm + offset,
		Depth:      t.Traits.Depth + offset,
		Empathy:    t.Traits.Empathy + offset,
		Humor:      t.Traits.Humor + offset,
		Creativity: t.Traits.Creativity + offset,
	}
	p.Clamp()
	return p
}

// Catalog is a list of templates.
type Catalog struct {
	Templates []Template `yaml:"templates"`
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("generator: parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err) // embedded file is covered by tests
	}
	return c
}

// LoadCatalog reads a catalog file, or returns the built-in catalog when
// path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("generator: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Validate rejects empty catalogs, unnamed templates and traits outside
// [0, 10].
func (c *Catalog) Validate() error {
	if len(c.Templates) == 0 {
		return errors.New("generator: catalog has no templates")
	}
	var errs []error
	for i, t := range c.Templates {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("template %d: missing name", i))
			continue
		}
		tr := t.Traits
		for _, v := range []float64{tr.Formality, tr.Enthusiasm, tr.Depth, tr.Empathy, tr.Humor, tr.Creativity} {
			if math.IsNaN(v) || v < types.TraitMin || v > types.TraitMax {
				errs = append(errs, fmt.Errorf("template %q: trait %v outside [0, 10]", t.Name, v))
				break
			}
		}
	}
	return errors.Join(errs...)
}
