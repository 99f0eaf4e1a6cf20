package alerts

import (
	"errors"
	"fmt"

	"thermoguard/internal/models"
)

// ErrInvalidThresholds is returned for a temperature band with lower >= upper.
var ErrInvalidThresholds = errors.New("temperature lower threshold must be below upper threshold")

// Thresholds are the bounds readings are classified against.
type Thresholds struct {
	TemperatureLower float64 `json:"temperature_lower"`
	TemperatureUpper float64 `json:"temperature_upper"`
	SmokeLimit       float64 `json:"smoke_limit"`
}

// Validate checks that the temperature band is non-empty.
func (t Thresholds) Validate() error {
	if t.TemperatureLower >= t.TemperatureUpper {
		return fmt.Errorf("%w: lower=%v upper=%v", ErrInvalidThresholds, t.TemperatureLower, t.TemperatureUpper)
	}
	return nil
}

// Classify returns the conditions the reading activates. Comparisons are
// strict: a temperature equal to a bound and a smoke level equal to the
// limit are not alerts. low and high are mutually exclusive.
func Classify(r *models.Reading, t Thresholds) []models.Condition {
	var conds []models.Condition

	switch {
	case r.Temperature < t.TemperatureLower:
		conds = append(conds, models.Condition{
			Metric:    models.MetricTemperature,
			Direction: models.DirectionLow,
			Value:     r.Temperature,
			Threshold: t.TemperatureLower,
		})
	case r.Temperature > t.TemperatureUpper:
		conds = append(conds, models.Condition{
			Metric:    models.MetricTemperature,
			Direction: models.DirectionHigh,
			Value:     r.Temperature,
			Threshold: t.TemperatureUpper,
		})
	}

	if r.SmokeLevel != nil && *r.SmokeLevel > t.SmokeLimit {
		conds = append(conds, models.Condition{
			Metric:    models.MetricSmoke,
			Direction: models.DirectionPresent,
			Value:     *r.SmokeLevel,
			Threshold: t.SmokeLimit,
		})
	}

	return conds
}
