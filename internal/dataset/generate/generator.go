// Package generate builds the synthetic evidence dataset the engines run
// against. Generation is fully deterministic for a given seed: entity ids are
// ULIDs drawn from the seeded source and every timestamp derives from a fixed
// base time.
package generate

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/revlift/internal/dataset/domain"
	"github.com/smallbiznis/revlift/internal/simmath"
)

// Config sizes the generated dataset.
type Config struct {
	Seed                 int64
	Merchants            int
	PlansPerMerchant     int
	PriceChangeEvents    int
	CancellationEvents   int
	PaymentFailureEvents int
	PauseEvents          int
}

// DefaultConfig returns the sizing used by the demo runner and tests.
func DefaultConfig() Config {
	return Config{
		Seed:                 42,
		Merchants:            4,
		PlansPerMerchant:     3,
		PriceChangeEvents:    120,
		CancellationEvents:   600,
		PaymentFailureEvents: 400,
		PauseEvents:          250,
	}
}

// baseTime anchors all generated timestamps so a seed reproduces the exact
// same dataset regardless of wall clock.
var baseTime = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

var merchantNames = []string{
	"Summit Strength Co",
	"Harborline Yoga",
	"Pulse Cycle Club",
	"Northbend Climbing",
	"Tidewater Pilates",
	"Ironwood Boxing",
}

var planNames = []string{"Starter", "Growth", "Pro"}

// Generator produces immutable dataset snapshots.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// New returns a generator for the given sizing config.
func New(cfg Config) *Generator {
	if cfg.Merchants <= 0 {
		cfg.Merchants = 1
	}
	if cfg.PlansPerMerchant <= 0 {
		cfg.PlansPerMerchant = 1
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// Generate builds a complete dataset snapshot.
func (g *Generator) Generate() *domain.Dataset {
	snapshotID, _ := uuid.NewRandomFromReader(g.rng)

	ds := &domain.Dataset{
		SnapshotID:  snapshotID.String(),
		GeneratedAt: time.Now().UTC(),
		Seed:        g.cfg.Seed,
	}

	for i := 0; i < g.cfg.Merchants; i++ {
		m := domain.Merchant{
			ID:        g.newID(baseTime),
			Name:      merchantNames[i%len(merchantNames)],
			Vertical:  domain.VerticalFitness,
			IsDefault: i == 0,
		}
		ds.Merchants = append(ds.Merchants, m)
		ds.Plans = append(ds.Plans, g.plansFor(m)...)
	}

	for i := 0; i < g.cfg.PriceChangeEvents; i++ {
		ds.PriceChanges = append(ds.PriceChanges, g.priceChange(ds.Plans))
	}
	for i := 0; i < g.cfg.CancellationEvents; i++ {
		ds.Cancellations = append(ds.Cancellations, g.cancellation(ds.Plans))
	}
	for i := 0; i < g.cfg.PaymentFailureEvents; i++ {
		ds.PaymentFailures = append(ds.PaymentFailures, g.paymentFailure(ds.Plans))
	}
	for i := 0; i < g.cfg.PauseEvents; i++ {
		ds.Pauses = append(ds.Pauses, g.pause(ds.Plans))
	}

	return ds
}

func (g *Generator) plansFor(m domain.Merchant) []domain.Plan {
	out := make([]domain.Plan, 0, g.cfg.PlansPerMerchant)
	for i := 0; i < g.cfg.PlansPerMerchant; i++ {
		interval := domain.IntervalMonthly
		if i == g.cfg.PlansPerMerchant-1 && g.rng.Float64() < 0.5 {
			interval = domain.IntervalAnnual
		}
		price := 9 + float64(i)*15 + g.round2(g.rng.Float64()*10)
		out = append(out, domain.Plan{
			ID:               g.newID(baseTime),
			MerchantID:       m.ID,
			Name:             planNames[i%len(planNames)],
			Interval:         interval,
			PriceMonthly:     price,
			ActiveSubs:       200 + g.rng.Intn(4800),
			BaselineChurn90d: 0.03 + g.rng.Float64()*0.09,
			AddonARPUMonthly: g.round2(g.rng.Float64() * 6),
			CreatedAt:        baseTime.AddDate(-2, g.rng.Intn(12), 0),

			BaselineCancelRate:  0.02 + g.rng.Float64()*0.06,
			PaymentFailRate:     0.03 + g.rng.Float64()*0.07,
			DunningRecoveryRate: 0.30 + g.rng.Float64()*0.30,
			PauseAdoptionRate:   0.05 + g.rng.Float64()*0.20,
		})
	}
	return out
}

func (g *Generator) priceChange(plans []domain.Plan) domain.PriceChangeEvent {
	plan := plans[g.rng.Intn(len(plans))]
	at := g.pastDate()

	// Mostly moderate moves, with an occasional extreme repricing so the
	// extreme similarity regime has comparables.
	pct := -0.25 + g.rng.Float64()*0.55
	if g.rng.Float64() < 0.08 {
		pct = 0.50 + g.rng.Float64()*0.60
	}

	oldPrice := g.round2(plan.PriceMonthly * (0.80 + g.rng.Float64()*0.40))
	newPrice := g.round2(oldPrice * (1 + pct))

	control := simmath.Clamp(plan.BaselineChurn90d+(g.rng.Float64()-0.5)*0.02, 0.01, 0.35)
	lift := pct * 0.12
	if pct < 0 {
		lift = pct * 0.06
	}
	lift *= 0.7 + g.rng.Float64()*0.6
	treat := simmath.Clamp(control+lift, 0.005, 0.90)

	return domain.PriceChangeEvent{
		ID:              g.newID(at),
		MerchantID:      plan.MerchantID,
		PlanID:          plan.ID,
		EffectiveAt:     at,
		OldPriceMonthly: oldPrice,
		NewPriceMonthly: newPrice,
		PctChange:       newPrice/oldPrice - 1,
		Churn90dTreat:   treat,
		Churn90dControl: control,
	}
}

func (g *Generator) cancellation(plans []domain.Plan) domain.CancellationEvent {
	plan := plans[g.rng.Intn(len(plans))]
	at := g.pastDate()

	intervention := domain.InterventionNone
	strength := domain.StrengthNone
	saveProb := 0.05
	switch roll := g.rng.Float64(); {
	case roll < 0.40:
		// keep the "none" control arm well populated
	case roll < 0.60:
		intervention = domain.InterventionSurvey
		saveProb = 0.08
	case roll < 0.75:
		intervention = domain.InterventionPause
		saveProb = 0.12
	default:
		intervention = domain.InterventionIncentive
		switch g.rng.Intn(3) {
		case 0:
			strength = domain.StrengthLight
			saveProb = 0.12
		case 1:
			strength = domain.StrengthMedium
			saveProb = 0.18
		default:
			strength = domain.StrengthHeavy
			saveProb = 0.25
		}
	}

	ev := domain.CancellationEvent{
		ID:                g.newID(at),
		MerchantID:        plan.MerchantID,
		PlanID:            plan.ID,
		OccurredAt:        at,
		Intervention:      intervention,
		IncentiveStrength: strength,
		Outcome:           domain.OutcomeCanceled,
	}
	if g.rng.Float64() < saveProb {
		ev.Outcome = domain.OutcomeSaved
		days := 30 + g.rng.Intn(270)
		ev.SavedLifetimeDays = &days
	}
	return ev
}

func (g *Generator) paymentFailure(plans []domain.Plan) domain.PaymentFailureEvent {
	plan := plans[g.rng.Intn(len(plans))]
	at := g.pastDate()

	retries := 1 + g.rng.Intn(8)
	windows := []int{3, 7, 14, 21, 30}
	window := windows[g.rng.Intn(len(windows))]
	fallback := g.rng.Float64() < 0.30

	recoverProb := 0.35 + 0.03*float64(retries) + 0.004*float64(window)
	if fallback {
		recoverProb += 0.10
	}
	recoverProb = simmath.Clamp(recoverProb, 0, 0.85)

	ev := domain.PaymentFailureEvent{
		ID:              g.newID(at),
		MerchantID:      plan.MerchantID,
		PlanID:          plan.ID,
		OccurredAt:      at,
		RetryCount:      retries,
		RetryWindowDays: window,
		FallbackUsed:    fallback,
	}
	if g.rng.Float64() < recoverProb {
		ev.Recovered = true
		day := 1 + g.rng.Intn(window)
		ev.RecoveredDay = &day
	}
	return ev
}

func (g *Generator) pause(plans []domain.Plan) domain.PauseEvent {
	plan := plans[g.rng.Intn(len(plans))]
	at := g.pastDate()

	cycles := 1 + g.rng.Intn(5)
	ev := domain.PauseEvent{
		ID:           g.newID(at),
		MerchantID:   plan.MerchantID,
		PlanID:       plan.ID,
		OccurredAt:   at,
		PauseEnabled: g.rng.Float64() < 0.85,
		CyclesUsed:   cycles,
	}
	resumeProb := simmath.Clamp(0.55-0.05*float64(cycles), 0.10, 0.90)
	if ev.PauseEnabled && g.rng.Float64() < resumeProb {
		ev.Resumed = true
		churned := g.rng.Float64() < 0.25
		ev.ChurnedWithin90d = &churned
	}
	return ev
}

// pastDate spreads events across the 24 months preceding the base time.
func (g *Generator) pastDate() time.Time {
	days := g.rng.Intn(730)
	return baseTime.AddDate(0, 0, -days)
}

func (g *Generator) newID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), g.rng).String()
}

func (g *Generator) round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
