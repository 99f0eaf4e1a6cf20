package alerts

import (
	"fmt"

	"thermoguard/internal/models"
)

// FormatNotification builds the user-facing message for a condition.
func FormatNotification(c models.Condition) models.Notification {
	var title, body string

	switch {
	case c.Metric == models.MetricTemperature && c.Direction == models.DirectionLow:
		title = "Low temperature alert"
		body = fmt.Sprintf("Current temperature is %.1f°C, below the minimum of %.1f°C.", c.Value, c.Threshold)
	case c.Metric == models.MetricTemperature && c.Direction == models.DirectionHigh:
		title = "High temperature alert"
		body = fmt.Sprintf("Current temperature is %.1f°C, above the maximum of %.1f°C.", c.Value, c.Threshold)
	case c.Metric == models.MetricSmoke:
		title = "Smoke detected"
		body = fmt.Sprintf("Smoke level is %.1f, above the limit of %.1f.", c.Value, c.Threshold)
	default:
		title = fmt.Sprintf("%s %s alert", c.Metric, c.Direction)
		body = fmt.Sprintf("%s is %.1f (threshold %.1f).", c.Metric, c.Value, c.Threshold)
	}

	return models.Notification{
		Title: title,
		Body:  body,
		Data: map[string]any{
			"key":       c.Key(),
			"metric":    string(c.Metric),
			"direction": string(c.Direction),
			"value":     c.Value,
			"threshold": c.Threshold,
		},
	}
}
