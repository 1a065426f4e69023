package dataset

import (
	"github.com/smallbiznis/revlift/internal/config"
	"github.com/smallbiznis/revlift/internal/dataset/domain"
	"github.com/smallbiznis/revlift/internal/dataset/generate"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewDataset generates the per-session evidence snapshot from config.
func NewDataset(cfg config.Config, log *zap.Logger) *domain.Dataset {
	gen := generate.New(generate.Config{
		Seed:                 cfg.Dataset.Seed,
		Merchants:            cfg.Dataset.Merchants,
		PlansPerMerchant:     cfg.Dataset.PlansPerMerchant,
		PriceChangeEvents:    cfg.Dataset.PriceChangeEvents,
		CancellationEvents:   cfg.Dataset.CancellationEvents,
		PaymentFailureEvents: cfg.Dataset.PaymentFailureEvents,
		PauseEvents:          cfg.Dataset.PauseEvents,
	})
	ds := gen.Generate()
	log.Named("dataset").Info("generated evidence snapshot",
		zap.String("snapshot_id", ds.SnapshotID),
		zap.Int64("seed", ds.Seed),
		zap.Int("merchants", len(ds.Merchants)),
		zap.Int("plans", len(ds.Plans)),
		zap.Int("price_changes", len(ds.PriceChanges)),
		zap.Int("cancellations", len(ds.Cancellations)),
		zap.Int("payment_failures", len(ds.PaymentFailures)),
		zap.Int("pauses", len(ds.Pauses)),
	)
	return ds
}

// Module wires the evidence snapshot and its store.
var Module = fx.Module("dataset",
	fx.Provide(NewDataset, NewStore),
)
