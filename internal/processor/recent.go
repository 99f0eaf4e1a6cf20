package processor

import (
	"sync"
	"time"

	"thermoguard/internal/models"
)

// RecentAlert is one dispatched alert as listed by /alerts.
type RecentAlert struct {
	Key       string           `json:"key"`
	Metric    models.Metric    `json:"metric"`
	Direction models.Direction `json:"direction"`
	Value     float64          `json:"value"`
	Threshold float64          `json:"threshold"`
	Path      models.Path      `json:"path"`
	SentAt    time.Time        `json:"sent_at"`
}

// recentAlerts keeps the last N dispatched alerts, newest first.
type recentAlerts struct {
	mu    sync.Mutex
	items []RecentAlert
	limit int
}

func newRecentAlerts(limit int) *recentAlerts {
	return &recentAlerts{limit: limit}
}

func (r *recentAlerts) add(c models.Condition, path models.Path, sentAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := RecentAlert{
		Key:       c.Key(),
		Metric:    c.Metric,
		Direction: c.Direction,
		Value:     c.Value,
		Threshold: c.Threshold,
		Path:      path,
		SentAt:    sentAt,
	}
	r.items = append([]RecentAlert{item}, r.items...)
	if len(r.items) > r.limit {
		r.items = r.items[:r.limit]
	}
}

func (r *recentAlerts) list() []RecentAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecentAlert, len(r.items))
	copy(out, r.items)
	return out
}
