// Package prompt holds the catalog of expert personas a session can be
// seeded with.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownExpert is returned by Lookup for keys not in the catalog
var ErrUnknownExpert = errors.New("unknown expert")

// Expert is a named system prompt
type Expert struct {
	Key    string `yaml:"key"`
	Label  string `yaml:"label"`
	System string `yaml:"system"`
}

// Catalog is an ordered set of experts with a default
type Catalog struct {
	experts    []Expert
	defaultKey string
}

type catalogFile struct {
	Default string   `yaml:"default"`
	Experts []Expert `yaml:"experts"`
}

// DefaultCatalog returns the built-in experts
func DefaultCatalog() *Catalog {
	return &Catalog{
		defaultKey: "programming",
		experts: []Expert{
			{
				Key:   "programming",
				Label: "Programming expert",
				System: "You are a senior software engineer. Answer with a practical, professional focus " +
					"on architecture, maintainability, performance, testing and security.\n\n" +
					"Rules:\n" +
					"- Ask clarifying questions when requirements are missing.\n" +
					"- Give actionable steps and examples.\n" +
					"- Keep code minimal and correct.\n" +
					"- Point out trade-offs and risks.",
			},
			{
				Key:   "marketing",
				Label: "Marketing expert",
				System: "You are a growth and strategic marketing expert. Answer clearly and with a business " +
					"focus: segmentation, value proposition, positioning, channels, funnel, pricing and metrics.\n\n" +
					"Rules:\n" +
					"- Identify the goal (awareness, leads, sales, retention) before proposing anything.\n" +
					"- Recommend concrete tactics with measurable KPIs.\n" +
					"- Ask for missing data such as sector, audience or budget.\n" +
					"- Offer low, medium and high cost alternatives.",
			},
			{
				Key:   "legal",
				Label: "Legal expert",
				System: "You are a legal advisor specialised in contracts and compliance. Answer formally and " +
					"prudently, focusing on risk analysis, obligations and common clauses.\n\n" +
					"Rules:\n" +
					"- Never invent specific laws or articles.\n" +
					"- Ask for the jurisdiction first when it is missing.\n" +
					"- Structure answers as facts, risks, recommendations.\n" +
					"- State that this is not definitive legal advice.",
			},
		},
	}
}

// LoadCatalog reads a YAML catalog file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read expert catalog: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse expert catalog %s: %w", path, err)
	}
	if len(f.Experts) == 0 {
		return nil, fmt.Errorf("expert catalog %s is empty", path)
	}

	c := &Catalog{defaultKey: f.Default}
	seen := make(map[string]bool, len(f.Experts))
	for _, e := range f.Experts {
		e.Key = strings.ToLower(strings.TrimSpace(e.Key))
		if e.Key == "" || strings.TrimSpace(e.System) == "" {
			return nil, fmt.Errorf("expert catalog %s: every expert needs a key and a system prompt", path)
		}
		if seen[e.Key] {
			return nil, fmt.Errorf("expert catalog %s: duplicate key %q", path, e.Key)
		}
		seen[e.Key] = true
		if e.Label == "" {
			e.Label = e.Key
		}
		c.experts = append(c.experts, e)
	}
	if c.defaultKey == "" || !seen[c.defaultKey] {
		c.defaultKey = c.experts[0].Key
	}
	return c, nil
}

// Keys returns the expert keys in catalog order
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.experts))
	for i, e := range c.experts {
		keys[i] = e.Key
	}
	return keys
}

// Experts returns a copy of the catalog entries
func (c *Catalog) Experts() []Expert {
	return append([]Expert(nil), c.experts...)
}

// Lookup returns the expert for key
func (c *Catalog) Lookup(key string) (Expert, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, e := range c.experts {
		if e.Key == key {
			return e, nil
		}
	}
	return Expert{}, fmt.Errorf("%w: %q", ErrUnknownExpert, key)
}

// Get returns the expert for key, or the default one
func (c *Catalog) Get(key string) Expert {
	if e, err := c.Lookup(key); err == nil {
		return e
	}
	e, _ := c.Lookup(c.defaultKey)
	return e
}

// Default returns the default expert
func (c *Catalog) Default() Expert {
	return c.Get(c.defaultKey)
}
