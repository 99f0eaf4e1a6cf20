package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SupportedTimestampFormats lists formats we attempt to parse
var SupportedTimestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.UnixDate,
}

// ErrInvalidTimestamp is returned when no supported format matches.
var ErrInvalidTimestamp = errors.New("invalid timestamp format")

// ChangeEvent is a realtime insert/update notification from the backend.
type ChangeEvent struct {
	Type   string     `json:"type"`
	Table  string     `json:"table,omitempty"`
	Record *SensorRow `json:"record"`
}

// ParseTimestamp attempts to parse a timestamp string into time.Time
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)

	for _, format := range SupportedTimestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, ErrInvalidTimestamp
}

// ToReading converts a backend row to a Reading. A missing data_hora means
// the reading was observed at now.
func (row SensorRow) ToReading(now time.Time) (*Reading, error) {
	if row.Temperatura == nil {
		return nil, ErrMissingTemperature
	}

	observedAt := now.UTC()
	if strings.TrimSpace(row.DataHora) != "" {
		ts, err := ParseTimestamp(row.DataHora)
		if err != nil {
			return nil, fmt.Errorf("data_hora: %w", err)
		}
		observedAt = ts
	}

	reading := &Reading{
		ID:          row.ID,
		Temperature: *row.Temperatura,
		Humidity:    row.Umidade,
		SmokeLevel:  row.PresencaFumaca,
		ObservedAt:  observedAt,
	}

	if err := reading.Validate(); err != nil {
		return nil, err
	}
	return reading, nil
}

// ParseRows decodes a realtime or webhook payload into sensor rows.
// Accepted shapes: a ChangeEvent, an array of rows, or a single row.
func ParseRows(body []byte) ([]SensorRow, error) {
	// Try parsing as ChangeEvent first
	var evt ChangeEvent
	if err := json.Unmarshal(body, &evt); err == nil && evt.Record != nil {
		return []SensorRow{*evt.Record}, nil
	}

	// Try parsing as array of rows
	var rows []SensorRow
	if err := json.Unmarshal(body, &rows); err == nil && len(rows) > 0 {
		return rows, nil
	}

	// Try parsing as single row
	var single SensorRow
	if err := json.Unmarshal(body, &single); err == nil && single.Temperatura != nil {
		return []SensorRow{single}, nil
	}

	return nil, fmt.Errorf("invalid JSON format: expected change event, row, or array of rows")
}
