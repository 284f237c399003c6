package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedCircle(t *testing.T, s *InMemory, id string) {
	t.Helper()
	err := s.Circles(context.Background()).Create(context.Background(), &Circle{
		ID:        id,
		Name:      "circle " + id,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed circle %s: %v", id, err)
	}
}

func seedCase(t *testing.T, s *InMemory, id, number, primary string) {
	t.Helper()
	err := s.Cases(context.Background()).Create(context.Background(), &Case{
		ID:              id,
		CaseNumber:      number,
		Title:           "case " + id,
		Status:          StatusOpen,
		Priority:        PriorityMedium,
		PrimaryCircleID: primary,
		CreatedBy:       "u1",
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed case %s: %v", id, err)
	}
}

func TestCaseCreateInsertsPrimaryLink(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedCircle(t, s, "c1")
	seedCase(t, s, "case1", "2025-001", "c1")

	links, err := s.Links(ctx).ListByCase(ctx, "case1")
	if err != nil {
		t.Fatalf("list links: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link after create, got %d", len(links))
	}
	if links[0].CircleID != "c1" || links[0].Role != LinkPrimary {
		t.Fatalf("unexpected primary link: %+v", links[0])
	}
}

func TestCaseNumberConflict(t *testing.T) {
	s := NewInMemory()
	seedCircle(t, s, "c1")
	seedCase(t, s, "case1", "2025-001", "c1")

	err := s.Cases(context.Background()).Create(context.Background(), &Case{
		ID:              "case2",
		CaseNumber:      "2025-001",
		Title:           "dup",
		Status:          StatusOpen,
		Priority:        PriorityLow,
		PrimaryCircleID: "c1",
		CreatedBy:       "u1",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate case number, got %v", err)
	}
}

func TestProfileForeignKeyAndUnique(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedCircle(t, s, "c1")

	err := s.Profiles(ctx).Create(ctx, &UserProfile{
		ID: "u1", FullName: "A", Role: RoleClerk, HomeCircleID: "missing", EmployeeID: "e1",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing circle, got %v", err)
	}

	if err := s.Profiles(ctx).Create(ctx, &UserProfile{
		ID: "u1", FullName: "A", Role: RoleClerk, HomeCircleID: "c1", EmployeeID: "e1",
	}); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	err = s.Profiles(ctx).Create(ctx, &UserProfile{
		ID: "u2", FullName: "B", Role: RoleJudge, HomeCircleID: "c1", EmployeeID: "e1",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate employee id, got %v", err)
	}
}

func TestLinkAddIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedCircle(t, s, "c1")
	seedCircle(t, s, "c2")
	seedCase(t, s, "case1", "2025-001", "c1")

	created, err := s.Links(ctx).Add(ctx, &CaseCircleLink{
		ID: "l1", CaseID: "case1", CircleID: "c2", Role: LinkCollaborating, AddedBy: "u1", AddedAt: time.Now().UTC(),
	})
	if err != nil || !created {
		t.Fatalf("first add: created=%v err=%v", created, err)
	}
	created, err = s.Links(ctx).Add(ctx, &CaseCircleLink{
		ID: "l2", CaseID: "case1", CircleID: "c2", Role: LinkConsulting, AddedBy: "u2", AddedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if created {
		t.Fatalf("second add reported created=true")
	}

	links, err := s.Links(ctx).ListByCase(ctx, "case1")
	if err != nil {
		t.Fatalf("list links: %v", err)
	}
	if len(links) != 2 { // primary + one collaboration
		t.Fatalf("expected 2 links, got %d", len(links))
	}
}

func TestLinkAddConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedCircle(t, s, "c1")
	seedCircle(t, s, "c2")
	seedCase(t, s, "case1", "2025-001", "c1")

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Links(ctx).Add(ctx, &CaseCircleLink{
				ID: "l" + string(rune('a'+i)), CaseID: "case1", CircleID: "c2",
				Role: LinkCollaborating, AddedBy: "u1", AddedAt: time.Now().UTC(),
			})
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
	if len(links) != 2 {
		t.Fatalf("expected exactly 2 links after concurrent adds, got %d", len(links))
	}
}

func TestListEntitled(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedCircle(t, s, "c1")
	seedCircle(t, s, "c2")
	seedCircle(t, s, "c3")
	seedCase(t, s, "case1", "2025-001", "c1")
	if _, err := s.Links(ctx).Add(ctx, &CaseCircleLink{
		ID: "l1", CaseID: "case1", CircleID: "c2", Role: LinkCollaborating, AddedBy: "u1", AddedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("add link: %v", err)
	}

	for circle, want := range map[string]int{"c1": 1, "c2": 1, "c3": 0} {
		got, err := s.Cases(ctx).ListEntitled(ctx, circle)
		if err != nil {
			t.Fatalf("list entitled for %s: %v", circle, err)
		}
		if len(got) != want {
			t.Fatalf("circle %s: expected %d cases, got %d", circle, want, len(got))
		}
	}
}

func TestMessageEdit(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedCircle(t, s, "c1")
	seedCase(t, s, "case1", "2025-001", "c1")
	if err := s.Threads(ctx).Create(ctx, &Thread{
		ID: "t1", CaseID: "case1", Title: "hearing prep", CreatedBy: "u1", CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if err := s.Messages(ctx).Create(ctx, &Message{
		ID: "m1", ThreadID: "t1", Content: "draft", SenderID: "u1", CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create message: %v", err)
	}

	at := time.Now().UTC()
	got, err := s.Messages(ctx).UpdateContent(ctx, "m1", "final", at)
	if err != nil {
		t.Fatalf("update content: %v", err)
	}
	if got.Content != "final" {
		t.Fatalf("content not updated: %q", got.Content)
	}
	if got.EditedAt == nil || !got.EditedAt.Equal(at) {
		t.Fatalf("edited_at not set: %v", got.EditedAt)
	}

	// The copy returned earlier must not alias store state.
	got.Content = "tampered"
	again, err := s.Messages(ctx).Find(ctx, "m1")
	if err != nil {
		t.Fatalf("find message: %v", err)
	}
	if again.Content != "final" {
		t.Fatalf("store state aliased by returned copy: %q", again.Content)
	}
}

func TestCaseUpdateFields(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedCircle(t, s, "c1")
	seedCase(t, s, "case1", "2025-001", "c1")

	st := StatusClosed
	title := "renamed"
	got, err := s.Cases(ctx).Update(ctx, "case1", CaseUpdate{Status: &st, Title: &title})
	if err != nil {
		t.Fatalf("update case: %v", err)
	}
	if got.Status != StatusClosed || got.Title != "renamed" {
		t.Fatalf("unexpected case after update: %+v", got)
	}
	if got.Priority != PriorityMedium {
		t.Fatalf("untouched field changed: %s", got.Priority)
	}
}

func TestCircleSet(t *testing.T) {
	s := NewCircleSet("b", "a")
	s.Add("c")
	if !s.Has("a") || !s.Has("b") || !s.Has("c") || s.Has("d") {
		t.Fatalf("membership wrong: %v", s)
	}
	ids := s.IDs()
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("expected sorted ids, got %v", ids)
	}
}
