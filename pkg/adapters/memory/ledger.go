package memory

import (
	"context"
	"sync"

	"github.com/aretw0/cascade/pkg/domain"
)

// Ledger implements ports.CostLedger in memory.
type Ledger struct {
	mu      sync.Mutex
	records []domain.CostRecord
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// RecordCost appends a record.
func (l *Ledger) RecordCost(ctx context.Context, record domain.CostRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
	return nil
}

// Records returns a copy of the recorded entries.
func (l *Ledger) Records() []domain.CostRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.CostRecord(nil), l.records...)
}

// Total sums cost and usage across all entries.
func (l *Ledger) Total() (float64, domain.Usage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var usd float64
	var usage domain.Usage
	for _, r := range l.records {
		usd += r.CostUSD
		usage = usage.Add(r.Usage)
	}
	return usd, usage
}
