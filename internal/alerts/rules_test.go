package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"thermoguard/internal/models"
)

func ptr(v float64) *float64 { return &v }

var defaultThresholds = Thresholds{TemperatureLower: 19, TemperatureUpper: 25, SmokeLimit: 100}

func keys(conds []models.Condition) []string {
	out := make([]string, 0, len(conds))
	for _, c := range conds {
		out = append(out, c.Key())
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		reading models.Reading
		want    []string
	}{
		{"inside band", models.Reading{Temperature: 22}, []string{}},
		{"just below lower", models.Reading{Temperature: 18.9}, []string{"temperature:low"}},
		{"at lower bound", models.Reading{Temperature: 19}, []string{}},
		{"just above upper", models.Reading{Temperature: 25.1}, []string{"temperature:high"}},
		{"at upper bound", models.Reading{Temperature: 25}, []string{}},
		{"smoke at limit", models.Reading{Temperature: 22, SmokeLevel: ptr(100)}, []string{}},
		{"smoke above limit", models.Reading{Temperature: 22, SmokeLevel: ptr(100.1)}, []string{"smoke:present"}},
		{"no smoke sensor", models.Reading{Temperature: 22, SmokeLevel: nil}, []string{}},
		{"low and smoke", models.Reading{Temperature: 15, SmokeLevel: ptr(300)}, []string{"temperature:low", "smoke:present"}},
		{"high and smoke", models.Reading{Temperature: 40, SmokeLevel: ptr(101)}, []string{"temperature:high", "smoke:present"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(&tt.reading, defaultThresholds)
			assert.Equal(t, tt.want, keys(got))
		})
	}
}

func TestClassifyCarriesValueAndThreshold(t *testing.T) {
	conds := Classify(&models.Reading{Temperature: 15, SmokeLevel: ptr(120)}, defaultThresholds)
	assert.Len(t, conds, 2)
	assert.Equal(t, 15.0, conds[0].Value)
	assert.Equal(t, 19.0, conds[0].Threshold)
	assert.Equal(t, 120.0, conds[1].Value)
	assert.Equal(t, 100.0, conds[1].Threshold)
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, defaultThresholds.Validate())
	assert.ErrorIs(t, Thresholds{TemperatureLower: 25, TemperatureUpper: 19}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Thresholds{TemperatureLower: 20, TemperatureUpper: 20}.Validate(), ErrInvalidThresholds)
}

func TestFormatNotification(t *testing.T) {
	n := FormatNotification(models.Condition{
		Metric: models.MetricTemperature, Direction: models.DirectionLow, Value: 15, Threshold: 19,
	})
	assert.Equal(t, "Low temperature alert", n.Title)
	assert.Equal(t, "Current temperature is 15.0°C, below the minimum of 19.0°C.", n.Body)
	assert.Equal(t, "temperature:low", n.Data["key"])
	assert.Equal(t, 15.0, n.Data["value"])

	n = FormatNotification(models.Condition{
		Metric: models.MetricTemperature, Direction: models.DirectionHigh, Value: 26, Threshold: 25,
	})
	assert.Equal(t, "High temperature alert", n.Title)
	assert.Contains(t, n.Body, "above the maximum of 25.0°C")

	n = FormatNotification(models.Condition{
		Metric: models.MetricSmoke, Direction: models.DirectionPresent, Value: 120, Threshold: 100,
	})
	assert.Equal(t, "Smoke detected", n.Title)
	assert.Equal(t, "Smoke level is 120.0, above the limit of 100.0.", n.Body)
}
