package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"thermoguard/internal/models"
)

// SlackSink posts notifications to a Slack incoming webhook.
type SlackSink struct {
	webhookURL string
	channel    string
	httpClient *http.Client
}

// SlackMessage represents a Slack message
type SlackMessage struct {
	Channel     string       `json:"channel,omitempty"`
	Text        string       `json:"text,omitempty"`
	Username    string       `json:"username,omitempty"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a Slack message attachment
type Attachment struct {
	Fallback  string  `json:"fallback,omitempty"`
	Color     string  `json:"color,omitempty"`
	Title     string  `json:"title,omitempty"`
	Text      string  `json:"text,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
	Footer    string  `json:"footer,omitempty"`
	Timestamp int64   `json:"ts,omitempty"`
}

// Field represents a field in a Slack attachment
type Field struct {
	Title string `json:"title,omitempty"`
	Value string `json:"value,omitempty"`
	Short bool   `json:"short,omitempty"`
}

// NewSlackSink creates a new Slack sink
func NewSlackSink(webhookURL, channel string) (*SlackSink, error) {
	if webhookURL == "" {
		return nil, errors.New("slack webhook URL cannot be empty")
	}

	return &SlackSink{
		webhookURL: webhookURL,
		channel:    channel,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Schedule(ctx context.Context, n models.Notification) error {
	return s.sendMessage(ctx, s.buildMessage(n, time.Now()))
}

func (s *SlackSink) buildMessage(n models.Notification, now time.Time) SlackMessage {
	color := "#FFA500"
	icon := ":thermometer:"
	switch n.Data["direction"] {
	case string(models.DirectionHigh):
		color = "#FF0000"
		icon = ":fire:"
	case string(models.DirectionLow):
		color = "#1E90FF"
		icon = ":snowflake:"
	case string(models.DirectionPresent):
		color = "#8B0000"
		icon = ":rotating_light:"
	}

	var fields []Field
	if v, ok := n.Data["value"].(float64); ok {
		fields = append(fields, Field{Title: "Value", Value: fmt.Sprintf("%.1f", v), Short: true})
	}
	if th, ok := n.Data["threshold"].(float64); ok {
		fields = append(fields, Field{Title: "Threshold", Value: fmt.Sprintf("%.1f", th), Short: true})
	}
	fields = append(fields, Field{Title: "Time", Value: now.UTC().Format(time.RFC1123), Short: false})

	return SlackMessage{
		Channel:   s.channel,
		Username:  "Sensor Monitor",
		IconEmoji: icon,
		Attachments: []Attachment{{
			Fallback:  n.Title + ": " + n.Body,
			Color:     color,
			Title:     n.Title,
			Text:      n.Body,
			Fields:    fields,
			Footer:    "thermoguard",
			Timestamp: now.Unix(),
		}},
	}
}

// sendMessage sends a message to Slack
func (s *SlackSink) sendMessage(ctx context.Context, message SlackMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("error marshaling Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request to Slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response status: %s", resp.Status)
	}

	return nil
}

func (s *SlackSink) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}
