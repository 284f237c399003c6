package relation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"curia.org/internal/policy"
	"curia.org/internal/registry"
)

type stubGate struct {
	err   error
	calls atomic.Int32

	lastAction policy.Action
	lastActor  string
}

func (g *stubGate) Authorize(ctx context.Context, actorID string, action policy.Action, res policy.Resource) error {
	g.calls.Add(1)
	g.lastActor = actorID
	g.lastAction = action
	return g.err
}

func seed(t *testing.T) *registry.InMemory {
	t.Helper()
	ctx := context.Background()
	s := registry.NewInMemory()
	for _, id := range []string{"c1", "c2", "c3"} {
		if err := s.Circles(ctx).Create(ctx, &registry.Circle{ID: id, Name: id, CreatedAt: time.Now().UTC()}); err != nil {
			t.Fatalf("seed circle: %v", err)
		}
	}
	if err := s.Cases(ctx).Create(ctx, &registry.Case{
		ID: "case1", CaseNumber: "2025-001", Title: "t", Status: registry.StatusOpen,
		Priority: registry.PriorityMedium, PrimaryCircleID: "c1", CreatedBy: "u1",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed case: %v", err)
	}
	return s
}

func TestEntitledCircles(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	ix := NewIndex(s)

	set, err := ix.EntitledCircles(ctx, "case1")
	if err != nil {
		t.Fatalf("entitled circles: %v", err)
	}
	if !set.Has("c1") || len(set) != 1 {
		t.Fatalf("expected {c1}, got %v", set.IDs())
	}

	if _, err := s.Links(ctx).Add(ctx, &registry.CaseCircleLink{
		ID: "l1", CaseID: "case1", CircleID: "c2", Role: registry.LinkCollaborating,
		AddedAt: time.Now().UTC(), AddedBy: "u1",
	}); err != nil {
		t.Fatalf("add link: %v", err)
	}
	set, err = ix.EntitledCircles(ctx, "case1")
	if err != nil {
		t.Fatalf("entitled circles: %v", err)
	}
	if !set.Has("c1") || !set.Has("c2") || len(set) != 2 {
		t.Fatalf("expected {c1 c2}, got %v", set.IDs())
	}

	if _, err := ix.EntitledCircles(ctx, "missing"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown case, got %v", err)
	}
}

func TestHomeCircle(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	if err := s.Profiles(ctx).Create(ctx, &registry.UserProfile{
		ID: "u1", FullName: "A", Role: registry.RoleClerk, HomeCircleID: "c1", EmployeeID: "e1",
	}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	ix := NewIndex(s)

	home, err := ix.HomeCircle(ctx, "u1")
	if err != nil || home != "c1" {
		t.Fatalf("home circle = %q, %v", home, err)
	}
	if _, err := ix.HomeCircle(ctx, "ghost"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestAddCollaboration(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	gate := &stubGate{}
	ix := NewIndex(s)
	ix.SetGate(gate)

	created, err := ix.AddCollaboration(ctx, "case1", "c2", "u1", "")
	if err != nil || !created {
		t.Fatalf("first add: created=%v err=%v", created, err)
	}
	if gate.lastAction != policy.ActionManageCollaboration || gate.lastActor != "u1" {
		t.Fatalf("gate saw action=%s actor=%s", gate.lastAction, gate.lastActor)
	}

	created, err = ix.AddCollaboration(ctx, "case1", "c2", "u1", registry.LinkConsulting)
	if err != nil {
		t.Fatalf("repeat add: %v", err)
	}
	if created {
		t.Fatal("repeat add reported created=true")
	}

	set, err := ix.EntitledCircles(ctx, "case1")
	if err != nil {
		t.Fatalf("entitled circles: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 entitled circles, got %v", set.IDs())
	}
}

func TestAddCollaborationDenied(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	denied := errors.New("denied")
	ix := NewIndex(s)
	ix.SetGate(&stubGate{err: denied})

	if _, err := ix.AddCollaboration(ctx, "case1", "c2", "u1", ""); !errors.Is(err, denied) {
		t.Fatalf("expected gate error to propagate, got %v", err)
	}
	set, err := ix.EntitledCircles(ctx, "case1")
	if err != nil {
		t.Fatalf("entitled circles: %v", err)
	}
	if set.Has("c2") {
		t.Fatal("denied add still widened the entitled set")
	}
}

func TestAddCollaborationValidation(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	ix := NewIndex(s)
	ix.SetGate(&stubGate{})

	if _, err := ix.AddCollaboration(ctx, "case1", "c2", "u1", registry.LinkPrimary); !errors.Is(err, registry.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for primary role, got %v", err)
	}
	if _, err := ix.AddCollaboration(ctx, "case1", "ghost", "u1", ""); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown circle, got %v", err)
	}
	if _, err := ix.AddCollaboration(ctx, "ghost", "c2", "u1", ""); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown case, got %v", err)
	}

	bare := NewIndex(s)
	if _, err := bare.AddCollaboration(ctx, "case1", "c2", "u1", ""); err == nil {
		t.Fatal("expected error without a gate")
	}
}

func TestAddCollaborationConcurrent(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	ix := NewIndex(s)
	ix.SetGate(&stubGate{})

	const n = 12
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ix.AddCollaboration(ctx, "case1", "c2", "u1", "")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent add %d failed: %v", i, err)
		}
	}
	links, err := s.Links(ctx).ListByCase(ctx, "case1")
	if err != nil {
		t.Fatalf("list links: %v", err)
	}
	if len(links) != 2 { // primary + one collaboration
		t.Fatalf("expected exactly 2 links, got %d", len(links))
	}
}
