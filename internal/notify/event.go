package notify

import (
	"context"
	"time"
)

// EventType names a bridge event.
type EventType string

const (
	EventCounterPublished EventType = "counter_published"
	EventPMCreated        EventType = "pm_created"
	EventPMAdvanced       EventType = "pm_advanced"
	EventPMFailed         EventType = "pm_failed"
)

// Event is emitted by the monitor and the PM controller.
type Event struct {
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
	SweepID   string    `json:"sweep_id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	AssetID   string    `json:"asset_id,omitempty"`
	Attribute string    `json:"attribute,omitempty"`
	ConfigID  string    `json:"config_id,omitempty"`
	PMID      string    `json:"pm_id,omitempty"`
	Value     any       `json:"value,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Notifier receives events. Implementations must not block the caller for long
// and never fail it.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Nop drops every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) {}
