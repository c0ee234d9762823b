package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"efd-cmms-bridge/internal/observability/metrics"
)

// Sink delivers rendered events to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, event Event, content string) error
}

// Clock provides time for dedupe decisions.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Dispatcher renders events and fans them out to sinks.
type Dispatcher struct {
	sinks          []Sink
	template       *Template
	logger         *slog.Logger
	clock          Clock
	dedupeWindow   time.Duration
	requestTimeout time.Duration
	types          map[EventType]bool

	mu   sync.Mutex
	sent map[string]sendRecord
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTemplate overrides the default template.
func WithTemplate(tpl *Template) Option {
	return func(d *Dispatcher) {
		if tpl != nil {
			d.template = tpl
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(d *Dispatcher) {
		if window > 0 {
			d.dedupeWindow = window
		}
	}
}

// WithRequestTimeout bounds each sink delivery.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.requestTimeout = timeout
		}
	}
}

// WithEventTypes restricts delivery to the listed event types.
func WithEventTypes(types ...EventType) Option {
	return func(d *Dispatcher) {
		if len(types) == 0 {
			return
		}
		d.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			d.types[t] = true
		}
	}
}

// NewDispatcher constructs a dispatcher. Nil sinks are ignored.
func NewDispatcher(sinks []Sink, opts ...Option) (*Dispatcher, error) {
	tpl, err := NewTemplate("")
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{
		template:       tpl,
		logger:         slog.Default(),
		clock:          systemClock{},
		requestTimeout: 10 * time.Second,
		sent:           make(map[string]sendRecord),
	}
	for _, sink := range sinks {
		if sink != nil {
			d.sinks = append(d.sinks, sink)
		}
	}
	if len(d.sinks) == 0 {
		return nil, errors.New("notify: no sinks")
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Notify implements Notifier.
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if d.types != nil && !d.types[event.Type] {
		return
	}
	if event.At.IsZero() {
		event.At = d.clock.Now()
	}
	content, err := d.template.Render(event)
	if err != nil {
		d.logger.Warn("render notification", "event", event.Type, "error", err)
		return
	}
	key := notificationKey(event)
	hash := hashEvent(event)
	if !d.shouldSend(key, hash) {
		return
	}
	delivered := false
	for _, sink := range d.sinks {
		err := d.send(ctx, sink, event, content)
		metrics.IncNotification(sink.Name(), err)
		if err != nil {
			d.logger.Warn("deliver notification", "sink", sink.Name(), "event", event.Type, "error", err)
			continue
		}
		delivered = true
	}
	if delivered {
		d.markSent(key, hash)
	}
}

func (d *Dispatcher) send(ctx context.Context, sink Sink, event Event, content string) error {
	if d.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.requestTimeout)
		defer cancel()
	}
	return sink.Send(ctx, event, content)
}

func (d *Dispatcher) shouldSend(key, hash string) bool {
	if d.dedupeWindow <= 0 {
		return true
	}
	d.mu.Lock()
	record, ok := d.sent[key]
	d.mu.Unlock()
	if !ok {
		return true
	}
	now := d.clock.Now()
	return record.hash != hash || now.Sub(record.at) >= d.dedupeWindow
}

func (d *Dispatcher) markSent(key, hash string) {
	if d.dedupeWindow <= 0 {
		return
	}
	d.mu.Lock()
	d.sent[key] = sendRecord{at: d.clock.Now(), hash: hash}
	d.mu.Unlock()
}

func notificationKey(event Event) string {
	return string(event.Type) + "|" + event.AssetID + "|" + event.ConfigID + "|" + event.Attribute
}

// hashEvent ignores the timestamp and sweep id so repeats of the same fact hash equal.
func hashEvent(event Event) string {
	event.At = time.Time{}
	event.SweepID = ""
	raw, err := json.Marshal(event)
	if err != nil {
		raw = []byte(fmt.Sprintf("%#v", event))
	}
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
