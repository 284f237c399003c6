package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. It mirrors
// the relational constraints (unique keys, foreign keys) so the engine and
// the tests observe the same failure modes as with Postgres.
type InMemory struct {
	mu        sync.RWMutex
	circles   map[string]*Circle
	profiles  map[string]*UserProfile
	cases     map[string]*Case
	links     map[string]*CaseCircleLink // id -> link
	threads   map[string]*Thread
	messages  map[string]*Message
	documents map[string]*Document
}

// NewInMemory creates an empty registry store.
func NewInMemory() *InMemory {
	return &InMemory{
		circles:   make(map[string]*Circle),
		profiles:  make(map[string]*UserProfile),
		cases:     make(map[string]*Case),
		links:     make(map[string]*CaseCircleLink),
		threads:   make(map[string]*Thread),
		messages:  make(map[string]*Message),
		documents: make(map[string]*Document),
	}
}

func (s *InMemory) Circles(ctx context.Context) CircleStore     { return (*memCircles)(s) }
func (s *InMemory) Profiles(ctx context.Context) ProfileStore   { return (*memProfiles)(s) }
func (s *InMemory) Cases(ctx context.Context) CaseStore         { return (*memCases)(s) }
func (s *InMemory) Links(ctx context.Context) LinkStore         { return (*memLinks)(s) }
func (s *InMemory) Threads(ctx context.Context) ThreadStore     { return (*memThreads)(s) }
func (s *InMemory) Messages(ctx context.Context) MessageStore   { return (*memMessages)(s) }
func (s *InMemory) Documents(ctx context.Context) DocumentStore { return (*memDocuments)(s) }

func (s *InMemory) Ping(ctx context.Context) error { return nil }

type memCircles InMemory

func (s *memCircles) Create(ctx context.Context, c *Circle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.circles[c.ID]; ok {
		return fmt.Errorf("%w: circle %s", ErrConflict, c.ID)
	}
	cp := *c
	s.circles[c.ID] = &cp
	return nil
}

func (s *memCircles) Find(ctx context.Context, id string) (*Circle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.circles[id]
	if !ok {
		return nil, fmt.Errorf("%w: circle %s", ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}

func (s *memCircles) List(ctx context.Context) ([]*Circle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Circle, 0, len(s.circles))
	for _, c := range s.circles {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memProfiles InMemory

func (s *memProfiles) Create(ctx context.Context, p *UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return fmt.Errorf("%w: profile %s", ErrConflict, p.ID)
	}
	for _, existing := range s.profiles {
		if existing.EmployeeID == p.EmployeeID {
			return fmt.Errorf("%w: employee id %s", ErrConflict, p.EmployeeID)
		}
	}
	if _, ok := s.circles[p.HomeCircleID]; !ok {
		return fmt.Errorf("%w: home circle %s", ErrNotFound, p.HomeCircleID)
	}
	cp := *p
	s.profiles[p.ID] = &cp
	return nil
}

func (s *memProfiles) Find(ctx context.Context, id string) (*UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: profile %s", ErrNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (s *memProfiles) FindByEmployeeID(ctx context.Context, employeeID string) (*UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.EmployeeID == employeeID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: employee id %s", ErrNotFound, employeeID)
}

func (s *memProfiles) ListByCircle(ctx context.Context, circleID string) ([]*UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*UserProfile
	for _, p := range s.profiles {
		if p.HomeCircleID == circleID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *memProfiles) Update(ctx context.Context, id string, upd ProfileUpdate) (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: profile %s", ErrNotFound, id)
	}
	if upd.FullName != nil {
		p.FullName = *upd.FullName
	}
	if upd.PasswordHash != nil {
		p.PasswordHash = *upd.PasswordHash
	}
	cp := *p
	return &cp, nil
}

type memCases InMemory

func (s *memCases) Create(ctx context.Context, c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; ok {
		return fmt.Errorf("%w: case %s", ErrConflict, c.ID)
	}
	for _, existing := range s.cases {
		if existing.CaseNumber == c.CaseNumber {
			return fmt.Errorf("%w: case number %s", ErrConflict, c.CaseNumber)
		}
	}
	if _, ok := s.circles[c.PrimaryCircleID]; !ok {
		return fmt.Errorf("%w: circle %s", ErrNotFound, c.PrimaryCircleID)
	}
	cp := *c
	s.cases[c.ID] = &cp
	// The primary circle is entitled from the first visible state, same as
	// the transactional insert in the Postgres store.
	linkID := c.ID + ":" + c.PrimaryCircleID
	s.links[linkID] = &CaseCircleLink{
		ID:       linkID,
		CaseID:   c.ID,
		CircleID: c.PrimaryCircleID,
		Role:     LinkPrimary,
		AddedAt:  c.CreatedAt,
		AddedBy:  c.CreatedBy,
	}
	return nil
}

func (s *memCases) Find(ctx context.Context, id string) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("%w: case %s", ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}

func (s *memCases) FindByNumber(ctx context.Context, caseNumber string) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cases {
		if c.CaseNumber == caseNumber {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: case number %s", ErrNotFound, caseNumber)
}

func (s *memCases) ListEntitled(ctx context.Context, circleID string) ([]*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entitled := map[string]bool{}
	for _, l := range s.links {
		if l.CircleID == circleID {
			entitled[l.CaseID] = true
		}
	}
	var out []*Case
	for id, c := range s.cases {
		if entitled[id] || c.PrimaryCircleID == circleID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memCases) Update(ctx context.Context, id string, upd CaseUpdate) (*Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("%w: case %s", ErrNotFound, id)
	}
	if upd.Title != nil {
		c.Title = *upd.Title
	}
	if upd.Description != nil {
		c.Description = *upd.Description
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	if upd.Priority != nil {
		c.Priority = *upd.Priority
	}
	if upd.AssignedJudge != nil {
		c.AssignedJudge = *upd.AssignedJudge
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

type memLinks InMemory

func (s *memLinks) Add(ctx context.Context, l *CaseCircleLink) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[l.CaseID]; !ok {
		return false, fmt.Errorf("%w: case %s", ErrNotFound, l.CaseID)
	}
	if _, ok := s.circles[l.CircleID]; !ok {
		return false, fmt.Errorf("%w: circle %s", ErrNotFound, l.CircleID)
	}
	for _, existing := range s.links {
		if existing.CaseID == l.CaseID && existing.CircleID == l.CircleID {
			return false, nil
		}
	}
	cp := *l
	s.links[l.ID] = &cp
	return true, nil
}

func (s *memLinks) ListByCase(ctx context.Context, caseID string) ([]*CaseCircleLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*CaseCircleLink
	for _, l := range s.links {
		if l.CaseID == caseID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out, nil
}

type memThreads InMemory

func (s *memThreads) Create(ctx context.Context, t *Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[t.ID]; ok {
		return fmt.Errorf("%w: thread %s", ErrConflict, t.ID)
	}
	if _, ok := s.cases[t.CaseID]; !ok {
		return fmt.Errorf("%w: case %s", ErrNotFound, t.CaseID)
	}
	cp := *t
	s.threads[t.ID] = &cp
	return nil
}

func (s *memThreads) Find(ctx context.Context, id string) (*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, fmt.Errorf("%w: thread %s", ErrNotFound, id)
	}
	cp := *t
	return &cp, nil
}

func (s *memThreads) ListByCase(ctx context.Context, caseID string) ([]*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Thread
	for _, t := range s.threads {
		if t.CaseID == caseID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type memMessages InMemory

func (s *memMessages) Create(ctx context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; ok {
		return fmt.Errorf("%w: message %s", ErrConflict, m.ID)
	}
	if _, ok := s.threads[m.ThreadID]; !ok {
		return fmt.Errorf("%w: thread %s", ErrNotFound, m.ThreadID)
	}
	s.messages[m.ID] = cloneMessage(m)
	return nil
}

func (s *memMessages) Find(ctx context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	return cloneMessage(m), nil
}

func (s *memMessages) ListByThread(ctx context.Context, threadID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Message
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			out = append(out, cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memMessages) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	m.Content = content
	t := editedAt
	m.EditedAt = &t
	return cloneMessage(m), nil
}

type memDocuments InMemory

func (s *memDocuments) Create(ctx context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[d.ID]; ok {
		return fmt.Errorf("%w: document %s", ErrConflict, d.ID)
	}
	if _, ok := s.cases[d.CaseID]; !ok {
		return fmt.Errorf("%w: case %s", ErrNotFound, d.CaseID)
	}
	cp := *d
	s.documents[d.ID] = &cp
	return nil
}

func (s *memDocuments) Find(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	cp := *d
	return &cp, nil
}

func (s *memDocuments) ListByCase(ctx context.Context, caseID string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Document
	for _, d := range s.documents {
		if d.CaseID == caseID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out, nil
}

func cloneMessage(m *Message) *Message {
	cp := *m
	if m.EditedAt != nil {
		t := *m.EditedAt
		cp.EditedAt = &t
	}
	return &cp
}
