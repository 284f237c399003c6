package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"curia.org/internal/ids"
	"curia.org/internal/obs"
)

// Recorder stamps, persists and mirrors audit entries. Every entry is
// appended to the durable store first; a structured log line is emitted only
// after the append succeeds, so the log never claims more than the store
// holds.
type Recorder struct {
	store Store
	now   func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record completes the entry from context, appends it and mirrors it to the
// log. The returned entry carries the assigned id and timestamp. An error
// means the entry is NOT durable and the caller must treat the guarded
// operation as not permitted to proceed.
func (r *Recorder) Record(ctx context.Context, e Entry) (*Entry, error) {
	e.Action = strings.TrimSpace(e.Action)
	e.ResourceType = strings.TrimSpace(e.ResourceType)
	if e.Action == "" {
		return nil, errors.New("audit: action is required")
	}
	if e.ResourceType == "" {
		return nil, errors.New("audit: resource type is required")
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	meta := MetaFromContext(ctx)
	if e.IPAddress == "" {
		e.IPAddress = meta.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = meta.UserAgent
	}
	if len(e.Details) > 0 {
		details := make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		e.Details = details
	}

	if err := r.store.Append(ctx, &e); err != nil {
		return nil, fmt.Errorf("audit: append: %w", err)
	}
	mirror(&e, meta.RequestID)
	return &e, nil
}

// mirror writes the entry as a structured JSON log line.
func mirror(e *Entry, requestID string) {
	line := map[string]any{
		"ts":            e.CreatedAt.Format(time.RFC3339Nano),
		"type":          "audit",
		"id":            e.ID,
		"action":        e.Action,
		"resource_type": e.ResourceType,
	}
	if e.UserID != "" {
		line["user_id"] = e.UserID
	}
	if e.ResourceID != "" {
		line["resource_id"] = e.ResourceID
	}
	if requestID != "" {
		line["request_id"] = requestID
	}
	if len(e.Details) > 0 {
		line["details"] = e.Details
	}
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))
}
