package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/ganymede/pkg/admission/budget"
	"mercator-hq/ganymede/pkg/config"
)

// SinkPruner is implemented by persistence sinks that support deleting
// aged periods. Daily period keys sort chronologically, so the cutoff is
// passed as a key.
type SinkPruner interface {
	PrunePeriodsBefore(ctx context.Context, cutoffKey string) (int, error)
}

// Pruner removes spending records older than the retention window from
// the in-memory ledger and, when one is attached, the persistence sink.
type Pruner struct {
	config config.RetentionConfig
	ledger *budget.Ledger
	sink   SinkPruner
	logger *slog.Logger

	// now is the clock source, overridable in tests.
	now func() time.Time
}

// NewPruner creates a pruner over a ledger. The sink may be nil for
// memory-only deployments.
func NewPruner(cfg config.RetentionConfig, ledger *budget.Ledger, sink SinkPruner) (*Pruner, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.RetainDays <= 0 {
		return nil, fmt.Errorf("retain_days must be positive, got %d", cfg.RetainDays)
	}

	return &Pruner{
		config: cfg,
		ledger: ledger,
		sink:   sink,
		logger: slog.Default().With("component", "retention.pruner"),
		now:    time.Now,
	}, nil
}

// Prune removes all records in daily periods strictly older than the
// retention window and returns the number of records removed from the
// in-memory ledger.
func (p *Pruner) Prune(ctx context.Context) (int, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.RetainDays)

	removed := p.ledger.PruneBefore(cutoff)

	if p.sink != nil {
		persisted, err := p.sink.PrunePeriodsBefore(ctx, budget.DailyKey(cutoff))
		if err != nil {
			return removed, fmt.Errorf("failed to prune sink: %w", err)
		}
		p.logger.Debug("Pruned persisted spending records",
			"deleted", persisted,
			"cutoff", budget.DailyKey(cutoff))
	}

	return removed, nil
}
