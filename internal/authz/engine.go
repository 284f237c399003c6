// Package authz is the decision engine: it resolves actors and resources,
// evaluates the policy, and records every decision in the audit trail before
// any gated operation is allowed to proceed.
package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"curia.org/internal/audit"
	"curia.org/internal/obs"
	"curia.org/internal/policy"
	"curia.org/internal/registry"
	"curia.org/internal/relation"
	"curia.org/internal/stream"
)

var (
	// ErrDenied marks a policy denial.
	ErrDenied = errors.New("authz: permission denied")
	// ErrStoreUnavailable marks an evaluation that failed closed because
	// state could not be read or the decision could not be made durable.
	ErrStoreUnavailable = errors.New("authz: store unavailable")
)

// DeniedError carries the decision that produced a denial.
type DeniedError struct {
	Decision policy.Decision
}

func (e *DeniedError) Error() string {
	return "authz: permission denied: " + e.Decision.Reason
}

func (e *DeniedError) Unwrap() error { return ErrDenied }

// Concealed reports whether err is a denial that must be presented as the
// resource not existing.
func Concealed(err error) bool {
	var de *DeniedError
	if errors.As(err, &de) {
		return de.Decision.Conceal
	}
	return false
}

// Ref names a decision target. ID is empty for create actions; CaseID names
// the parent case when creating threads or uploading documents, ThreadID the
// parent thread when sending messages.
type Ref struct {
	Kind     policy.ResourceKind
	ID       string
	CaseID   string
	ThreadID string
}

// Engine evaluates access-control decisions. It is stateless across calls:
// every decision reads a fresh snapshot, and a decision is returned only
// after its audit entry is durable.
type Engine struct {
	store     registry.Store
	relations *relation.Index
	recorder  *audit.Recorder
	events    *stream.Stream
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvents publishes every decision to the given stream.
func WithEvents(s *stream.Stream) Option {
	return func(e *Engine) { e.events = s }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds the engine and its relationship index over one store.
func NewEngine(store registry.Store, recorder *audit.Recorder, opts ...Option) *Engine {
	e := &Engine{store: store, recorder: recorder, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.relations = relation.NewIndex(store, relation.WithClock(e.now))
	e.relations.SetGate(e)
	return e
}

// Relations exposes the relationship index built over the same store.
func (e *Engine) Relations() *relation.Index { return e.relations }

// CanView decides whether actorID may read the referenced resource. For the
// audit trail the applicable action is view_audit.
func (e *Engine) CanView(ctx context.Context, actorID string, ref Ref) (policy.Decision, error) {
	action := policy.ActionView
	if ref.Kind == policy.KindAudit {
		action = policy.ActionViewAudit
	}
	res, err := e.resolve(ctx, ref)
	if err != nil {
		return e.denyUnresolved(ctx, actorID, action, ref, err)
	}
	return e.evaluate(ctx, actorID, action, res)
}

// CanMutate decides whether actorID may perform the mutating action on the
// referenced resource. Exactly one audit entry is recorded per call, and an
// Allow is returned only once that entry is durable.
func (e *Engine) CanMutate(ctx context.Context, actorID string, action policy.Action, ref Ref) (policy.Decision, error) {
	if !action.Valid() || !action.Mutating() {
		return policy.Decision{}, fmt.Errorf("%w: action %q is not a mutation", registry.ErrInvalidInput, action)
	}
	res, err := e.resolve(ctx, ref)
	if err != nil {
		return e.denyUnresolved(ctx, actorID, action, ref, err)
	}
	return e.evaluate(ctx, actorID, action, res)
}

// AddCollaboration grants a circle access to a case through the relationship
// index; the index calls back into this engine for the gating decision.
func (e *Engine) AddCollaboration(ctx context.Context, caseID, circleID, addedBy string, role registry.LinkRole) (bool, error) {
	return e.relations.AddCollaboration(ctx, caseID, circleID, addedBy, role)
}

// RecordAudit appends an entry without any gating. Appending to the audit
// trail is the one operation no rule may block.
func (e *Engine) RecordAudit(ctx context.Context, entry audit.Entry) (*audit.Entry, error) {
	return e.recorder.Record(ctx, entry)
}

// Authorize implements relation.Gate: evaluate, record, and translate a
// denial into an error.
func (e *Engine) Authorize(ctx context.Context, actorID string, action policy.Action, res policy.Resource) error {
	_, err := e.evaluate(ctx, actorID, action, res)
	return err
}

// evaluate runs the policy for a resolved resource and makes the decision
// durable. A store or audit failure fails closed.
func (e *Engine) evaluate(ctx context.Context, actorID string, action policy.Action, res policy.Resource) (policy.Decision, error) {
	actor, err := e.store.Profiles(ctx).Find(ctx, actorID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			d := policy.Decision{Allowed: false, Rule: "unknown_actor", Reason: "actor profile not found"}
			if rerr := e.record(ctx, actorID, action, res, d); rerr != nil {
				return policy.Decision{}, rerr
			}
			e.observe(actorID, action, res, d)
			return d, &DeniedError{Decision: d}
		}
		return policy.Decision{}, fmt.Errorf("%w: load actor: %v", ErrStoreUnavailable, err)
	}

	d := policy.Decide(*actor, action, res)
	if err := e.record(ctx, actorID, action, res, d); err != nil {
		return policy.Decision{}, err
	}
	e.observe(actorID, action, res, d)
	if !d.Allowed {
		return d, &DeniedError{Decision: d}
	}
	return d, nil
}

// denyUnresolved handles resolution failures. Resource absence is still a
// recorded (denied) decision; infrastructure failures fail closed without a
// decision.
func (e *Engine) denyUnresolved(ctx context.Context, actorID string, action policy.Action, ref Ref, cause error) (policy.Decision, error) {
	if !errors.Is(cause, registry.ErrNotFound) {
		if errors.Is(cause, registry.ErrInvalidInput) {
			return policy.Decision{}, cause
		}
		return policy.Decision{}, fmt.Errorf("%w: resolve %s: %v", ErrStoreUnavailable, ref.Kind, cause)
	}
	d := policy.Decision{
		Allowed: false,
		Rule:    "resource_missing",
		Reason:  "resource not found",
		Conceal: ref.Kind.CaseScoped(),
	}
	res := policy.Resource{Kind: ref.Kind, ID: ref.ID, CaseID: ref.CaseID}
	if rerr := e.record(ctx, actorID, action, res, d); rerr != nil {
		return policy.Decision{}, rerr
	}
	e.observe(actorID, action, res, d)
	return d, cause
}

// record appends the decision audit entry. Failure means the decision is not
// durable and the operation must not proceed.
func (e *Engine) record(ctx context.Context, actorID string, action policy.Action, res policy.Resource, d policy.Decision) error {
	details := map[string]string{
		"decision": verdict(d.Allowed),
		"rule":     d.Rule,
		"reason":   d.Reason,
	}
	if res.CaseID != "" && res.CaseID != res.ID {
		details["case_id"] = res.CaseID
	}
	entry := audit.Entry{
		UserID:       actorID,
		Action:       string(action),
		ResourceType: string(res.Kind),
		ResourceID:   resourceID(res),
		Details:      details,
		CreatedAt:    e.now().UTC(),
	}
	if _, err := e.recorder.Record(ctx, entry); err != nil {
		return fmt.Errorf("%w: decision not durable: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (e *Engine) observe(actorID string, action policy.Action, res policy.Resource, d policy.Decision) {
	obs.ObserveDecision(string(action), string(res.Kind), d.Allowed)
	if e.events != nil {
		e.events.Publish(stream.DecisionEvent{
			ActorID:      actorID,
			Action:       string(action),
			ResourceType: string(res.Kind),
			ResourceID:   resourceID(res),
			Decision:     verdict(d.Allowed),
			Rule:         d.Rule,
			Timestamp:    e.now().UTC(),
		})
	}
}

// resolve loads the target snapshot. Case-scoped kinds resolve their parent
// case context through the relationship index so the entitled set is always
// computed in one place.
func (e *Engine) resolve(ctx context.Context, ref Ref) (policy.Resource, error) {
	switch ref.Kind {
	case policy.KindCircle:
		if ref.ID == "" {
			return policy.Resource{}, fmt.Errorf("%w: circle id is required", registry.ErrInvalidInput)
		}
		if _, err := e.store.Circles(ctx).Find(ctx, ref.ID); err != nil {
			return policy.Resource{}, err
		}
		return policy.Resource{Kind: ref.Kind, ID: ref.ID}, nil

	case policy.KindProfile:
		if ref.ID == "" {
			return policy.Resource{}, fmt.Errorf("%w: profile id is required", registry.ErrInvalidInput)
		}
		if _, err := e.store.Profiles(ctx).Find(ctx, ref.ID); err != nil {
			return policy.Resource{}, err
		}
		return policy.Resource{Kind: ref.Kind, ID: ref.ID}, nil

	case policy.KindCase:
		if ref.ID == "" {
			// Creating a case: no resource state exists yet.
			return policy.Resource{Kind: ref.Kind}, nil
		}
		c, entitled, err := e.relations.CaseSnapshot(ctx, ref.ID)
		if err != nil {
			return policy.Resource{}, err
		}
		return policy.Resource{
			Kind: ref.Kind, ID: c.ID, CaseID: c.ID,
			PrimaryCircleID: c.PrimaryCircleID, Entitled: entitled,
		}, nil

	case policy.KindThread:
		caseID := ref.CaseID
		if ref.ID != "" {
			t, err := e.store.Threads(ctx).Find(ctx, ref.ID)
			if err != nil {
				return policy.Resource{}, err
			}
			caseID = t.CaseID
		}
		if caseID == "" {
			return policy.Resource{}, fmt.Errorf("%w: case id is required to create a thread", registry.ErrInvalidInput)
		}
		c, entitled, err := e.relations.CaseSnapshot(ctx, caseID)
		if err != nil {
			return policy.Resource{}, err
		}
		return policy.Resource{
			Kind: ref.Kind, ID: ref.ID, CaseID: c.ID,
			PrimaryCircleID: c.PrimaryCircleID, Entitled: entitled,
		}, nil

	case policy.KindMessage:
		threadID := ref.ThreadID
		senderID := ""
		if ref.ID != "" {
			m, err := e.store.Messages(ctx).Find(ctx, ref.ID)
			if err != nil {
				return policy.Resource{}, err
			}
			threadID = m.ThreadID
			senderID = m.SenderID
		}
		if threadID == "" {
			return policy.Resource{}, fmt.Errorf("%w: thread id is required to send a message", registry.ErrInvalidInput)
		}
		t, err := e.store.Threads(ctx).Find(ctx, threadID)
		if err != nil {
			return policy.Resource{}, err
		}
		c, entitled, err := e.relations.CaseSnapshot(ctx, t.CaseID)
		if err != nil {
			return policy.Resource{}, err
		}
		return policy.Resource{
			Kind: ref.Kind, ID: ref.ID, CaseID: c.ID,
			PrimaryCircleID: c.PrimaryCircleID, Entitled: entitled,
			SenderID: senderID,
		}, nil

	case policy.KindDocument:
		caseID := ref.CaseID
		if ref.ID != "" {
			d, err := e.store.Documents(ctx).Find(ctx, ref.ID)
			if err != nil {
				return policy.Resource{}, err
			}
			caseID = d.CaseID
		}
		if caseID == "" {
			return policy.Resource{}, fmt.Errorf("%w: case id is required to upload a document", registry.ErrInvalidInput)
		}
		c, entitled, err := e.relations.CaseSnapshot(ctx, caseID)
		if err != nil {
			return policy.Resource{}, err
		}
		return policy.Resource{
			Kind: ref.Kind, ID: ref.ID, CaseID: c.ID,
			PrimaryCircleID: c.PrimaryCircleID, Entitled: entitled,
		}, nil

	case policy.KindAudit:
		return policy.Resource{Kind: ref.Kind}, nil
	}
	return policy.Resource{}, fmt.Errorf("%w: unknown resource kind %q", registry.ErrInvalidInput, ref.Kind)
}

func resourceID(res policy.Resource) string {
	if res.ID != "" {
		return res.ID
	}
	return res.CaseID
}

func verdict(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
