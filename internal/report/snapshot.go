// Package report builds the current-values report: for every channel, the
// value the registry holds now and the local checkpoint behind it.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	masterdata "efd-cmms-bridge/internal/masterdata/domain"
	monitoring "efd-cmms-bridge/internal/monitoring/domain"
)

const defaultConcurrency = 4

// AttributeReader reads current asset attributes.
type AttributeReader interface {
	GetAttribute(ctx context.Context, assetID, attribute string) (any, error)
}

// CheckpointLister lists persisted checkpoints.
type CheckpointLister interface {
	Checkpoints(ctx context.Context) ([]monitoring.CheckpointRecord, error)
}

// Row is one channel line of the report.
type Row struct {
	Channel     string
	Measurement string
	Field       string
	AssetID     string
	Attribute   string
	Current     any
	Checkpoint  *int64
	Error       string
}

// Snapshot is a generated report.
type Snapshot struct {
	GeneratedAt time.Time
	Rows        []Row
}

// Builder gathers snapshots.
type Builder struct {
	reader      AttributeReader
	checkpoints CheckpointLister
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

// Option customizes a Builder.
type Option func(*Builder)

// WithConcurrency bounds parallel registry reads.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithNow overrides the report timestamp source.
func WithNow(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder constructs a Builder. checkpoints may be nil.
func NewBuilder(reader AttributeReader, checkpoints CheckpointLister, opts ...Option) (*Builder, error) {
	if reader == nil {
		return nil, errors.New("report: nil attribute reader")
	}
	b := &Builder{
		reader:      reader,
		checkpoints: checkpoints,
		logger:      slog.Default(),
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build reads every channel's registry value. A failed read is recorded on
// its row rather than failing the report.
func (b *Builder) Build(ctx context.Context, channels []masterdata.MonitorChannel) (Snapshot, error) {
	snap := Snapshot{GeneratedAt: b.now(), Rows: make([]Row, len(channels))}

	counts := map[string]int64{}
	if b.checkpoints != nil {
		records, err := b.checkpoints.Checkpoints(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("report: list checkpoints: %w", err)
		}
		for _, rec := range records {
			counts[rec.AssetID] = rec.LastSeenEdgeCount
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, ch := range channels {
		row := Row{
			Channel:     ch.Name,
			Measurement: ch.Measurement,
			Field:       ch.Field,
			AssetID:     ch.AssetID,
			Attribute:   ch.Attribute,
		}
		if ch.IsCounter() {
			row.Field = strings.Join(ch.Counter.Fields, "+")
			if count, ok := counts[ch.AssetID]; ok {
				row.Checkpoint = &count
			}
		}
		i := i
		g.Go(func() error {
			value, err := b.reader.GetAttribute(gctx, row.AssetID, row.Attribute)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				b.logger.Warn("report: read attribute failed",
					slog.String("channel", row.Channel),
					slog.String("asset_id", row.AssetID),
					slog.Any("err", err))
				row.Error = err.Error()
			} else {
				row.Current = value
			}
			snap.Rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// FormatValue renders a registry value for display.
func FormatValue(v any) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(v)
}
