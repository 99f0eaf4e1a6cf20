package models

import (
	"errors"
	"math"
	"time"
)

// Reading is a point-in-time measurement delivered by the sensor backend.
type Reading struct {
	// Backend row id, zero when the producer did not send one
	ID int64 `json:"id,omitempty"`

	// Temperature in degrees Celsius
	Temperature float64 `json:"temperature"`

	// Relative humidity, nil when the sensor does not report it
	Humidity *float64 `json:"humidity,omitempty"`

	// Smoke level, nil when the sensor does not report it
	SmokeLevel *float64 `json:"smoke_level,omitempty"`

	// When the sensor took the measurement
	ObservedAt time.Time `json:"observed_at"`
}

// SensorRow is the wire shape of a row in the backend readings table.
type SensorRow struct {
	ID             int64    `json:"id,omitempty"`
	Temperatura    *float64 `json:"temperatura"`
	Umidade        *float64 `json:"umidade,omitempty"`
	PresencaFumaca *float64 `json:"presenca_fumaca,omitempty"`
	DataHora       string   `json:"data_hora,omitempty"`
}

// Validation errors
var (
	ErrMissingTemperature = errors.New("reading has no temperature")
	ErrInvalidTemperature = errors.New("temperature is not a finite number")
	ErrInvalidSmokeLevel  = errors.New("smoke level is not a finite number")
	ErrNoReading          = errors.New("no reading available")
)

// Validate checks that the reading can be classified.
func (r *Reading) Validate() error {
	if !finite(r.Temperature) {
		return ErrInvalidTemperature
	}

	if r.SmokeLevel != nil && !finite(*r.SmokeLevel) {
		return ErrInvalidSmokeLevel
	}

	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
