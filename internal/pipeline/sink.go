package pipeline

import (
	"context"
	"log/slog"

	"github.com/moyedx3/figure-scrapper/internal/detector"
)

// EventSink receives each outward-facing change exactly once per detection.
// Delivery, batching and subscriber filtering belong to the consumer behind
// the sink, not to the pipeline.
type EventSink interface {
	EmitChange(ctx context.Context, change detector.Change)
}

// SlogSink logs every change. The default sink when no dispatch queue is
// configured.
type SlogSink struct{}

func (SlogSink) EmitChange(ctx context.Context, change detector.Change) {
	slog.InfoContext(ctx, "product change",
		"kind", change.Kind,
		"catalog", change.Catalog,
		"id", change.CatalogID,
		"name", change.Name,
		"old", change.OldValue,
		"new", change.NewValue,
	)
}

// QueueSink buffers changes for an external dispatcher to drain. When the
// buffer fills, further changes are dropped with a warning rather than
// blocking the scrape cycle.
type QueueSink struct {
	ch chan detector.Change
}

func NewQueueSink(size int) *QueueSink {
	if size <= 0 {
		size = 256
	}
	return &QueueSink{ch: make(chan detector.Change, size)}
}

func (q *QueueSink) EmitChange(ctx context.Context, change detector.Change) {
	select {
	case q.ch <- change:
	default:
		slog.WarnContext(ctx, "event queue full, dropping change",
			"kind", change.Kind, "catalog", change.Catalog, "id", change.CatalogID)
	}
}

// Changes exposes the buffered stream to the dispatcher.
func (q *QueueSink) Changes() <-chan detector.Change {
	return q.ch
}

// Drain empties the queue and returns what was buffered.
func (q *QueueSink) Drain() []detector.Change {
	var out []detector.Change
	for {
		select {
		case c := <-q.ch:
			out = append(out, c)
		default:
			return out
		}
	}
}
