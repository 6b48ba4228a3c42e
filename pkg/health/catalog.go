package health

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// builtins holds rules registered from init() functions in rule packages.
var builtins = &builtinTable{}

type builtinTable struct {
	mu    sync.RWMutex
	rules []RuleDef
}

// Register adds a built-in rule. Call this from init() functions in rule packages.
func Register(rule RuleDef) {
	if rule.Source == "" {
		rule.Source = SourceBuiltin
	}
	builtins.mu.Lock()
	defer builtins.mu.Unlock()
	builtins.rules = append(builtins.rules, rule)
}

// Builtins returns every built-in rule in registration order.
func Builtins() []RuleDef {
	builtins.mu.RLock()
	defer builtins.mu.RUnlock()
	out := make([]RuleDef, len(builtins.rules))
	copy(out, builtins.rules)
	return out
}

// Catalog stores rule definitions partitioned by category.
// Reads may run concurrently; writes are serialized.
type Catalog struct {
	mu    sync.RWMutex
	rules map[Category]map[string]RuleDef // category -> id -> rule
	order []ruleKey                       // registration order
}

type ruleKey struct {
	category Category
	id       string
}

// NewCatalog creates a catalog seeded with every built-in rule.
func NewCatalog() *Catalog {
	c := NewEmptyCatalog()
	for _, rule := range Builtins() {
		c.Register(rule)
	}
	return c
}

// NewEmptyCatalog creates a catalog with no rules. Used for testing.
func NewEmptyCatalog() *Catalog {
	return &Catalog{rules: make(map[Category]map[string]RuleDef)}
}

// Register inserts a rule unless one with the same (category, id) already exists.
// It reports whether the rule was inserted; the first registration wins.
func (c *Catalog) Register(rule RuleDef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	byID, ok := c.rules[rule.Category]
	if !ok {
		byID = make(map[string]RuleDef)
		c.rules[rule.Category] = byID
	}
	if _, exists := byID[rule.ID]; exists {
		return false
	}
	byID[rule.ID] = rule
	c.order = append(c.order, ruleKey{category: rule.Category, id: rule.ID})
	return true
}

// Resolve returns the rule registered under (category, id).
func (c *Catalog) Resolve(category Category, id string) (RuleDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rule, ok := c.rules[category][id]; ok {
		return rule, nil
	}
	return RuleDef{}, fmt.Errorf("%s/%s: %w", category, id, ErrRuleNotFound)
}

// ResolveWithFallback resolves id in category first and then in the extended category.
func (c *Catalog) ResolveWithFallback(category Category, id string) (RuleDef, error) {
	rule, err := c.Resolve(category, id)
	if err == nil || category == CategoryExtended {
		return rule, err
	}
	return c.Resolve(CategoryExtended, id)
}

// List returns the ids registered in a category, sorted.
func (c *Catalog) List(category Category) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.rules[category]))
	for id := range c.rules[category] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entries returns the rules of a category in registration order.
// An empty category returns every rule.
func (c *Catalog) Entries(category Category) []RuleDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []RuleDef
	for _, key := range c.order {
		if category != "" && key.category != category {
			continue
		}
		out = append(out, c.rules[key.category][key.id])
	}
	return out
}

// Contains reports whether any category holds a rule whose id matches id,
// ignoring case.
func (c *Catalog) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, key := range c.order {
		if strings.EqualFold(key.id, id) {
			return true
		}
	}
	return false
}

// Len returns the total number of registered rules.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Validate checks a selection against the catalog, applying the extended fallback.
// Every unknown id is reported in a single InvalidRuleSelectionError.
func (c *Catalog) Validate(category Category, ids []string) error {
	var missing []string
	for _, id := range ids {
		if _, err := c.ResolveWithFallback(category, id); err != nil {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &InvalidRuleSelectionError{Category: category, Missing: missing}
	}
	return nil
}
