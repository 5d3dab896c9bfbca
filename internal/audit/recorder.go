package audit

import (
	"context"
	"encoding/json"

	"log/slog"

	"github.com/google/uuid"

	id "claimgate/pkg/domain"
	"claimgate/pkg/requestcontext"
)

// Store persists entries. Append-only; nothing in this subsystem updates or
// deletes what it wrote.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByRequest(ctx context.Context, requestID id.RequestID) ([]Entry, error)
	ListByDay(ctx context.Context, day string) ([]Entry, error)
}

// FanOut forwards serialized entries to an external sink (Kafka). Best
// effort by contract.
type FanOut interface {
	Publish(ctx context.Context, key string, value []byte)
}

// Recorder writes audit entries. Failures are logged and swallowed: a lost
// audit line must never fail the caller's request.
type Recorder struct {
	store  Store
	fanOut FanOut
	logger *slog.Logger
}

type Option func(*Recorder)

// WithFanOut forwards every entry to an external sink after persistence.
func WithFanOut(f FanOut) Option {
	return func(r *Recorder) {
		r.fanOut = f
	}
}

func NewRecorder(store Store, logger *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{store: store, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record fills in the entry's identity fields and appends it. Always returns;
// log-and-continue on every failure path.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.LogID == "" {
		entry.LogID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	entry.Day = DayBucket(entry.Timestamp)
	if entry.Actor == "" {
		entry.Actor = "system"
	}
	if device := requestcontext.Device(ctx); device != "" {
		if entry.Metadata == nil {
			entry.Metadata = map[string]string{}
		}
		entry.Metadata["device"] = device
	}

	if err := r.store.Append(ctx, entry); err != nil {
		r.logger.WarnContext(ctx, "audit append failed",
			"event", entry.Event,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return
	}

	if r.fanOut != nil {
		payload, err := json.Marshal(entry)
		if err != nil {
			r.logger.WarnContext(ctx, "audit entry marshal failed", "error", err)
			return
		}
		r.fanOut.Publish(ctx, entry.RequestID.String(), payload)
	}
}
