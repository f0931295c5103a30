// Package pricing converts token usage into USD cost.
package pricing

import (
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/cascade/pkg/domain"
)

// ModelCost holds prices in USD per million tokens.
type ModelCost struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// Calculate returns the cost of u at these prices.
func (m ModelCost) Calculate(u domain.Usage) float64 {
	return float64(u.PromptTokens)*m.InputPerMillion/1e6 +
		float64(u.CompletionTokens)*m.OutputPerMillion/1e6
}

// DefaultPrices lists known model families. Dated snapshots match by prefix.
var DefaultPrices = map[string]ModelCost{
	"gpt-4o":       {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":  {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":      {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"gpt-4.1-mini": {InputPerMillion: 0.40, OutputPerMillion: 1.60},
	"gpt-4.1-nano": {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	"gpt-5":        {InputPerMillion: 1.25, OutputPerMillion: 10.00},
	"gpt-5-mini":   {InputPerMillion: 0.25, OutputPerMillion: 2.00},
	"gpt-5-nano":   {InputPerMillion: 0.05, OutputPerMillion: 0.40},
	"o3":           {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"o4-mini":      {InputPerMillion: 1.10, OutputPerMillion: 4.40},
}

// Table resolves model names to prices using the longest matching prefix.
type Table struct {
	mu     sync.RWMutex
	prices map[string]ModelCost
	keys   []string
}

// NewTable copies prices; nil means DefaultPrices.
func NewTable(prices map[string]ModelCost) *Table {
	if prices == nil {
		prices = DefaultPrices
	}
	t := &Table{prices: make(map[string]ModelCost, len(prices))}
	for k, v := range prices {
		t.prices[normalize(k)] = v
	}
	t.reindex()
	return t
}

// Set adds or replaces the price of a model family.
func (t *Table) Set(model string, cost ModelCost) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices[normalize(model)] = cost
	t.reindex()
}

// Lookup returns the prices for model and whether any entry matched.
func (t *Table) Lookup(model string) (ModelCost, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name := normalize(model)
	for _, k := range t.keys {
		if name == k || strings.HasPrefix(name, k+"-") {
			return t.prices[k], true
		}
	}
	return ModelCost{}, false
}

// Cost implements the executor's pricer. Unknown models cost zero.
func (t *Table) Cost(model string, u domain.Usage) float64 {
	mc, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return mc.Calculate(u)
}

// keys sorted longest first so "gpt-4o-mini" wins over "gpt-4o".
func (t *Table) reindex() {
	t.keys = t.keys[:0]
	for k := range t.prices {
		t.keys = append(t.keys, k)
	}
	sort.Slice(t.keys, func(i, j int) bool {
		if len(t.keys[i]) != len(t.keys[j]) {
			return len(t.keys[i]) > len(t.keys[j])
		}
		return t.keys[i] < t.keys[j]
	})
}

// normalize drops a provider prefix such as "openai/".
func normalize(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	return model
}
