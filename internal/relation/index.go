// Package relation computes which circles are entitled to a case and owns
// the add-only collaboration links that widen that set.
package relation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"curia.org/internal/ids"
	"curia.org/internal/policy"
	"curia.org/internal/registry"
)

// Gate authorizes a gated operation before the index writes a link. It is
// implemented by the decision engine; the indirection exists because link
// writes are themselves gated, while the engine depends on this index for
// every other decision.
type Gate interface {
	Authorize(ctx context.Context, actorID string, action policy.Action, res policy.Resource) error
}

// Index derives entitled circle sets from the registry. It keeps no state of
// its own: every call reads a fresh snapshot, so a granted collaboration is
// effective on the next decision and a stale grant can never outlive the
// stored links.
type Index struct {
	store registry.Store
	gate  Gate
	now   func() time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(ix *Index) { ix.now = now }
}

// NewIndex creates an Index over the given store. SetGate must be called
// before AddCollaboration is used.
func NewIndex(store registry.Store, opts ...Option) *Index {
	ix := &Index{store: store, now: time.Now}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// SetGate wires the authorization gate. It is separate from construction
// because the engine and the index reference each other.
func (ix *Index) SetGate(g Gate) { ix.gate = g }

// CaseSnapshot loads the case and its entitled circle set in one consistent
// read: the primary circle plus every linked circle. The primary circle is
// always injected even if its link row were missing.
func (ix *Index) CaseSnapshot(ctx context.Context, caseID string) (*registry.Case, registry.CircleSet, error) {
	c, err := ix.store.Cases(ctx).Find(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	links, err := ix.store.Links(ctx).ListByCase(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	set := registry.NewCircleSet(c.PrimaryCircleID)
	for _, l := range links {
		set.Add(l.CircleID)
	}
	return c, set, nil
}

// EntitledCircles returns the set of circles whose members may access the
// case.
func (ix *Index) EntitledCircles(ctx context.Context, caseID string) (registry.CircleSet, error) {
	_, set, err := ix.CaseSnapshot(ctx, caseID)
	return set, err
}

// HomeCircle returns the home circle of the given user.
func (ix *Index) HomeCircle(ctx context.Context, userID string) (string, error) {
	p, err := ix.store.Profiles(ctx).Find(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.HomeCircleID, nil
}

// AddCollaboration grants circleID access to caseID. The write is gated on a
// manage_collaboration decision for addedBy. The call is idempotent: if the
// link already exists it succeeds without effect, and the created result
// reports which of the two happened. The primary link role is reserved for
// case creation.
func (ix *Index) AddCollaboration(ctx context.Context, caseID, circleID, addedBy string, role registry.LinkRole) (bool, error) {
	if ix.gate == nil {
		return false, errors.New("relation: no authorization gate configured")
	}
	if role == "" {
		role = registry.LinkCollaborating
	}
	if role == registry.LinkPrimary || !role.Valid() {
		return false, fmt.Errorf("%w: link role %q", registry.ErrInvalidInput, role)
	}

	c, entitled, err := ix.CaseSnapshot(ctx, caseID)
	if err != nil {
		return false, err
	}

	res := policy.Resource{
		Kind:            policy.KindCase,
		ID:              c.ID,
		CaseID:          c.ID,
		PrimaryCircleID: c.PrimaryCircleID,
		Entitled:        entitled,
	}
	if err := ix.gate.Authorize(ctx, addedBy, policy.ActionManageCollaboration, res); err != nil {
		return false, err
	}

	// Circle existence is checked only after the actor proved entitled, so
	// unauthorized callers cannot probe circle ids.
	if _, err := ix.store.Circles(ctx).Find(ctx, circleID); err != nil {
		return false, err
	}

	link := &registry.CaseCircleLink{
		ID:       ids.New(),
		CaseID:   caseID,
		CircleID: circleID,
		Role:     role,
		AddedAt:  ix.now().UTC(),
		AddedBy:  addedBy,
	}
	return ix.store.Links(ctx).Add(ctx, link)
}
