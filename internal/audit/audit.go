package audit

import (
	"context"
	"strings"
	"time"
)

// Entry is one append-only audit record. Entries are immutable once written;
// no update or delete path exists anywhere in the system.
type Entry struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id,omitempty"` // empty for system actions
	Action       string            `json:"action"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// Store persists audit entries. Append durability is a precondition for the
// decision engine to let a gated operation proceed.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) ([]*Entry, error)
}

// RequestMeta carries per-request attribution copied onto audit entries.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

type ctxKey string

const requestMetaKey ctxKey = "audit_request_meta"

// WithRequestMeta attaches request attribution to the context.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	meta.RequestID = strings.TrimSpace(meta.RequestID)
	if meta == (RequestMeta{}) {
		return ctx
	}
	return context.WithValue(ctx, requestMetaKey, meta)
}

// MetaFromContext extracts request attribution if present.
func MetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	if m, ok := ctx.Value(requestMetaKey).(RequestMeta); ok {
		return m
	}
	return RequestMeta{}
}
