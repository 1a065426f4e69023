package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SimulationPolicy holds the tunable guardrails of the simulation engines.
// The numeric defaults are the calibrated production values; overriding them
// via simulation.yml is meant for experimentation, not normal operation.
type SimulationPolicy struct {
	// SafeIncreaseThreshold is the percent change above which the price
	// shock correction starts blending toward ChurnCeiling.
	SafeIncreaseThreshold float64 `mapstructure:"safeIncreaseThreshold"`
	// ShockRampWidth is the percent-change width over which the shock
	// weight ramps from 0 to 1.
	ShockRampWidth float64 `mapstructure:"shockRampWidth"`
	// ChurnCeiling is the absolute cap on expected 90-day churn.
	ChurnCeiling float64 `mapstructure:"churnCeiling"`

	// MinEvidenceEvents is the weighted-event count below which the price
	// engine falls back to the heuristic branch.
	MinEvidenceEvents int `mapstructure:"minEvidenceEvents"`
	// GlobalPriceBand is the relative old-price band outside which
	// cross-merchant comparables get zero proximity weight.
	GlobalPriceBand float64 `mapstructure:"globalPriceBand"`

	ConfidenceHighEvents int `mapstructure:"confidenceHighEvents"`
	ConfidenceMedEvents  int `mapstructure:"confidenceMedEvents"`

	// Sweep defaults for FindOptimalPrice.
	SweepSteps     int     `mapstructure:"sweepSteps"`
	SweepRangeLow  float64 `mapstructure:"sweepRangeLow"`
	SweepRangeHigh float64 `mapstructure:"sweepRangeHigh"`
	// PriceFloorRatio is the minimum swept price as a fraction of current.
	PriceFloorRatio float64 `mapstructure:"priceFloorRatio"`
	// MaxARRDownside bounds the ARR loss acceptable for the churn-optimal
	// price, as a fraction of baseline annualized revenue.
	MaxARRDownside float64 `mapstructure:"maxARRDownside"`

	// Churn lever engine thresholds.
	LeverConfidenceHigh int     `mapstructure:"leverConfidenceHigh"`
	LeverConfidenceMed  int     `mapstructure:"leverConfidenceMed"`
	FatigueCap          float64 `mapstructure:"fatigueCap"`
	SavedShareWarning   float64 `mapstructure:"savedShareWarning"`
}

// DefaultSimulationPolicy returns the calibrated production policy.
func DefaultSimulationPolicy() SimulationPolicy {
	return SimulationPolicy{
		SafeIncreaseThreshold: 0.25,
		ShockRampWidth:        0.45,
		ChurnCeiling:          0.90,
		MinEvidenceEvents:     5,
		GlobalPriceBand:       0.30,
		ConfidenceHighEvents:  25,
		ConfidenceMedEvents:   10,
		SweepSteps:            50,
		SweepRangeLow:         -0.5,
		SweepRangeHigh:        1.0,
		PriceFloorRatio:       0.5,
		MaxARRDownside:        0.10,
		LeverConfidenceHigh:   100,
		LeverConfidenceMed:    30,
		FatigueCap:            0.50,
		SavedShareWarning:     0.30,
	}
}

// PolicyHolder exposes the active simulation policy with hot reload.
type PolicyHolder struct {
	current atomic.Value // holds SimulationPolicy
}

// NewPolicyHolder loads simulation.yml when present, falling back to the
// calibrated defaults, and watches the file for changes.
func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("simulation")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/revlift")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REVLIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setPolicyDefaults(v, DefaultSimulationPolicy())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy SimulationPolicy
	if err := v.UnmarshalKey("simulation", &policy); err != nil {
		return nil, err
	}
	if err := validateSimulationPolicy(policy); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SimulationPolicy
		if err := v.UnmarshalKey("simulation", &updated); err != nil {
			log.Printf("[simulation-policy] reload failed: %v", err)
			return
		}
		if err := validateSimulationPolicy(updated); err != nil {
			log.Printf("[simulation-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

// NewStaticPolicyHolder wraps a fixed policy; used by tests.
func NewStaticPolicyHolder(policy SimulationPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

// Policy returns the currently active policy.
func (h *PolicyHolder) Policy() SimulationPolicy {
	return h.current.Load().(SimulationPolicy)
}

func setPolicyDefaults(v *viper.Viper, p SimulationPolicy) {
	v.SetDefault("simulation.safeIncreaseThreshold", p.SafeIncreaseThreshold)
	v.SetDefault("simulation.shockRampWidth", p.ShockRampWidth)
	v.SetDefault("simulation.churnCeiling", p.ChurnCeiling)
	v.SetDefault("simulation.minEvidenceEvents", p.MinEvidenceEvents)
	v.SetDefault("simulation.globalPriceBand", p.GlobalPriceBand)
	v.SetDefault("simulation.confidenceHighEvents", p.ConfidenceHighEvents)
	v.SetDefault("simulation.confidenceMedEvents", p.ConfidenceMedEvents)
	v.SetDefault("simulation.sweepSteps", p.SweepSteps)
	v.SetDefault("simulation.sweepRangeLow", p.SweepRangeLow)
	v.SetDefault("simulation.sweepRangeHigh", p.SweepRangeHigh)
	v.SetDefault("simulation.priceFloorRatio", p.PriceFloorRatio)
	v.SetDefault("simulation.maxARRDownside", p.MaxARRDownside)
	v.SetDefault("simulation.leverConfidenceHigh", p.LeverConfidenceHigh)
	v.SetDefault("simulation.leverConfidenceMed", p.LeverConfidenceMed)
	v.SetDefault("simulation.fatigueCap", p.FatigueCap)
	v.SetDefault("simulation.savedShareWarning", p.SavedShareWarning)
}

func validateSimulationPolicy(p SimulationPolicy) error {
	if p.SafeIncreaseThreshold <= 0 || p.ShockRampWidth <= 0 {
		return errors.New("simulation policy: shock thresholds must be positive")
	}
	if p.ChurnCeiling <= 0 || p.ChurnCeiling > 1 {
		return errors.New("simulation policy: churnCeiling must be in (0, 1]")
	}
	if p.MinEvidenceEvents < 1 {
		return errors.New("simulation policy: minEvidenceEvents must be >= 1")
	}
	if p.GlobalPriceBand <= 0 {
		return errors.New("simulation policy: globalPriceBand must be positive")
	}
	if p.ConfidenceHighEvents <= p.ConfidenceMedEvents {
		return errors.New("simulation policy: confidenceHighEvents must exceed confidenceMedEvents")
	}
	if p.SweepSteps < 1 {
		return errors.New("simulation policy: sweepSteps must be >= 1")
	}
	if p.SweepRangeLow >= p.SweepRangeHigh {
		return errors.New("simulation policy: sweepRangeLow must be below sweepRangeHigh")
	}
	if p.PriceFloorRatio <= 0 || p.PriceFloorRatio >= 1 {
		return errors.New("simulation policy: priceFloorRatio must be in (0, 1)")
	}
	if p.LeverConfidenceHigh <= p.LeverConfidenceMed {
		return errors.New("simulation policy: leverConfidenceHigh must exceed leverConfidenceMed")
	}
	if p.FatigueCap < 0 || p.FatigueCap > 1 {
		return errors.New("simulation policy: fatigueCap must be in [0, 1]")
	}
	return nil
}
