// Package events announces finished reconciliation runs to other services.
package events

import (
	"context"
	"time"
)

// TopicPointsReconciled is the default topic for run notifications.
const TopicPointsReconciled = "points.reconciled"

// Reconciled is published after the record table was rewritten.
type Reconciled struct {
	RunID       string         `json:"run_id"`
	TriggerID   string         `json:"trigger_id"`
	Source      string         `json:"source"`
	Sheet       string         `json:"sheet"`
	Members     int            `json:"members"`
	TotalPoints float64        `json:"total_points"`
	Outcomes    map[string]int `json:"outcomes"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// Publisher delivers Reconciled notifications.
type Publisher interface {
	Publish(ctx context.Context, ev Reconciled) error
	Close() error
}

// NopPublisher drops every notification.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, Reconciled) error { return nil }
func (NopPublisher) Close() error                              { return nil }
