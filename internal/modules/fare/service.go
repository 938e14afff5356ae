// README: Fare math: estimates, midpoint rounding, and final fare resolution.
package fare

import (
	"context"
	"log/slog"
)

// ConfigSource loads the live rate table.
type ConfigSource interface {
	FareConfig(ctx context.Context) (Config, error)
}

type Service struct {
	source ConfigSource
	log    *slog.Logger
}

func NewService(source ConfigSource, log *slog.Logger) *Service {
	return &Service{source: source, log: log}
}

// Load returns the configured rate table, degrading to the hardcoded default
// when the lookup fails or no table is configured.
func (s *Service) Load(ctx context.Context) Config {
	if s.source == nil {
		return DefaultConfig()
	}
	cfg, err := s.source.FareConfig(ctx)
	if err != nil {
		s.log.Error("fare config lookup failed, using defaults", "err", err)
		return DefaultConfig()
	}
	return cfg
}

// Estimate computes a pre-trip fare from estimated distance and driving
// duration: floored at the minimum fare, then rounded to the increment.
func Estimate(cfg Config, distanceKm, durationMinutes float64) float64 {
	subtotal := cfg.StartingFare + distanceKm*cfg.FarePerKilometer + durationMinutes*cfg.FarePerMinuteDriving
	if subtotal < cfg.MinimumFare {
		subtotal = cfg.MinimumFare
	}
	return RoundToIncrement(subtotal, cfg.RoundingIncrement)
}

// RoundToIncrement rounds a fare to the configured increment with the
// midpoint-rounds-up policy: exact multiples are kept, amounts up to half an
// increment above a multiple round to the half-increment, the rest round up
// to the next multiple. A non-positive increment disables rounding.
func RoundToIncrement(fare, increment float64) float64 {
	if increment <= 0 {
		return fare
	}
	base := float64(int64(fare/increment)) * increment
	diff := fare - base
	switch {
	case diff == 0:
		return fare
	case diff <= increment/2:
		return base + increment/2
	default:
		return base + increment
	}
}

// Actuals carries the trip measurements the driver app reports at
// completion. Nil fields mean the app did not track them.
type Actuals struct {
	DistanceKm             *float64
	DrivingDurationMinutes *float64
	TotalWaitingMinutes    *float64
}

// Finalize resolves the fare for a completed ride.
//
// Resolution order: actuals from the driver app; else the customer's own
// pre-trip estimate, used verbatim as the pre-commission fare; else the
// request's original estimates with no waiting term. The minimum-fare floor
// applies only to computed fares, never to the customer's estimate.
// Commission and earnings are taken from the pre-rounding fare; only the
// customer-facing total is rounded.
func Finalize(cfg Config, actuals Actuals, customerEstimate *float64, estimatedDistanceKm, estimatedDurationMinutes float64) Quote {
	var subtotal, beforeCommission float64

	switch {
	case actuals.DistanceKm != nil && actuals.DrivingDurationMinutes != nil:
		waiting := 0.0
		if actuals.TotalWaitingMinutes != nil {
			waiting = *actuals.TotalWaitingMinutes
		}
		subtotal = cfg.StartingFare +
			*actuals.DistanceKm*cfg.FarePerKilometer +
			*actuals.DrivingDurationMinutes*cfg.FarePerMinuteDriving +
			waiting*cfg.FarePerMinuteWaiting
		beforeCommission = subtotal
		if beforeCommission < cfg.MinimumFare {
			beforeCommission = cfg.MinimumFare
		}
	case customerEstimate != nil:
		subtotal = *customerEstimate
		beforeCommission = *customerEstimate
	default:
		subtotal = cfg.StartingFare +
			estimatedDistanceKm*cfg.FarePerKilometer +
			estimatedDurationMinutes*cfg.FarePerMinuteDriving
		beforeCommission = subtotal
		if beforeCommission < cfg.MinimumFare {
			beforeCommission = cfg.MinimumFare
		}
	}

	commission := beforeCommission * cfg.CommissionRate
	return Quote{
		Subtotal:         subtotal,
		BeforeCommission: beforeCommission,
		Total:            RoundToIncrement(beforeCommission, cfg.RoundingIncrement),
		Commission:       commission,
		DriverEarnings:   beforeCommission - commission,
		Config:           cfg,
	}
}
