package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/cascade/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Ledger implements ports.CostLedger as an append-only Redis list,
// with running totals kept in a hash.
type Ledger struct {
	client *backend.Client
	prefix string
}

// NewLedger creates a ledger. An empty prefix means DefaultPrefix.
func NewLedger(client *backend.Client, prefix string) *Ledger {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Ledger{client: client, prefix: prefix}
}

func (l *Ledger) listKey() string   { return l.prefix + "costs" }
func (l *Ledger) totalsKey() string { return l.prefix + "costs:totals" }

// RecordCost appends the record and bumps the totals atomically.
func (l *Ledger) RecordCost(ctx context.Context, record domain.CostRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal cost record: %w", err)
	}
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, l.listKey(), data)
	pipe.HIncrByFloat(ctx, l.totalsKey(), "usd", record.CostUSD)
	pipe.HIncrBy(ctx, l.totalsKey(), "prompt_tokens", int64(record.Usage.PromptTokens))
	pipe.HIncrBy(ctx, l.totalsKey(), "completion_tokens", int64(record.Usage.CompletionTokens))
	pipe.HIncrBy(ctx, l.totalsKey(), "total_tokens", int64(record.Usage.TotalTokens))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record cost: %w", err)
	}
	return nil
}

// Records returns every entry in insertion order.
func (l *Ledger) Records(ctx context.Context) ([]domain.CostRecord, error) {
	vals, err := l.client.LRange(ctx, l.listKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cost records: %w", err)
	}
	out := make([]domain.CostRecord, 0, len(vals))
	for _, v := range vals {
		var r domain.CostRecord
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cost record: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Total returns the accumulated cost and usage.
func (l *Ledger) Total(ctx context.Context) (float64, domain.Usage, error) {
	var totals struct {
		USD              float64 `redis:"usd"`
		PromptTokens     int     `redis:"prompt_tokens"`
		CompletionTokens int     `redis:"completion_tokens"`
		TotalTokens      int     `redis:"total_tokens"`
	}
	if err := l.client.HGetAll(ctx, l.totalsKey()).Scan(&totals); err != nil {
		return 0, domain.Usage{}, fmt.Errorf("failed to read cost totals: %w", err)
	}
	return totals.USD, domain.Usage{
		PromptTokens:     totals.PromptTokens,
		CompletionTokens: totals.CompletionTokens,
		TotalTokens:      totals.TotalTokens,
	}, nil
}
