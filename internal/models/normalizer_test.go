package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestParseRows(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{
			name: "change event",
			body: `{"type":"INSERT","table":"leituras_sensores","record":{"id":7,"temperatura":18.5,"umidade":40,"presenca_fumaca":0}}`,
			want: 1,
		},
		{
			name: "array of rows",
			body: `[{"temperatura":18.5},{"temperatura":22}]`,
			want: 2,
		},
		{
			name: "single row",
			body: `{"temperatura":30.1,"presenca_fumaca":120}`,
			want: 1,
		},
		{
			name:    "no temperature",
			body:    `{"umidade":40}`,
			wantErr: true,
		},
		{
			name:    "garbage",
			body:    `not json`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ParseRows([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, rows, tt.want)
		})
	}
}

func TestSensorRowToReading(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	row := SensorRow{
		ID:             3,
		Temperatura:    ptr(18.9),
		Umidade:        ptr(55),
		PresencaFumaca: ptr(100.1),
		DataHora:       "2024-01-15T10:00:00Z",
	}
	reading, err := row.ToReading(now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), reading.ID)
	assert.Equal(t, 18.9, reading.Temperature)
	assert.Equal(t, 100.1, *reading.SmokeLevel)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), reading.ObservedAt)

	row.DataHora = ""
	reading, err = row.ToReading(now)
	require.NoError(t, err)
	assert.Equal(t, now, reading.ObservedAt)

	row.DataHora = "yesterday"
	_, err = row.ToReading(now)
	assert.ErrorIs(t, err, ErrInvalidTimestamp)

	_, err = SensorRow{}.ToReading(now)
	assert.ErrorIs(t, err, ErrMissingTemperature)
}

func TestReadingValidate(t *testing.T) {
	zero := 0.0
	nan := zero / zero

	assert.NoError(t, (&Reading{Temperature: 21}).Validate())
	assert.ErrorIs(t, (&Reading{Temperature: nan}).Validate(), ErrInvalidTemperature)
	assert.ErrorIs(t, (&Reading{Temperature: 21, SmokeLevel: &nan}).Validate(), ErrInvalidSmokeLevel)
}

func TestParseTimestamp(t *testing.T) {
	for _, ts := range []string{
		"2024-01-15T10:30:00Z",
		"2024-01-15T10:30:00.123456",
		"2024-01-15 10:30:00",
		"  2024-01-15T10:30:00+00:00  ",
	} {
		got, err := ParseTimestamp(ts)
		require.NoError(t, err, ts)
		assert.Equal(t, 2024, got.Year())
		assert.Equal(t, time.UTC, got.Location())
	}
}

func TestConditionKey(t *testing.T) {
	c := Condition{Metric: MetricTemperature, Direction: DirectionLow}
	assert.Equal(t, "temperature:low", c.Key())
	assert.Equal(t, "smoke:present", AlertKey(MetricSmoke, DirectionPresent))
}
