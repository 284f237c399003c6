package registry

import (
	"context"
	"time"
)

// Store describes persistence operations required by the case registry.
type Store interface {
	Circles(ctx context.Context) CircleStore
	Profiles(ctx context.Context) ProfileStore
	Cases(ctx context.Context) CaseStore
	Links(ctx context.Context) LinkStore
	Threads(ctx context.Context) ThreadStore
	Messages(ctx context.Context) MessageStore
	Documents(ctx context.Context) DocumentStore
	Ping(ctx context.Context) error
}

// CircleStore manages circles.
type CircleStore interface {
	Create(ctx context.Context, c *Circle) error
	Find(ctx context.Context, id string) (*Circle, error)
	List(ctx context.Context) ([]*Circle, error)
}

// ProfileStore manages user profiles.
type ProfileStore interface {
	Create(ctx context.Context, p *UserProfile) error
	Find(ctx context.Context, id string) (*UserProfile, error)
	FindByEmployeeID(ctx context.Context, employeeID string) (*UserProfile, error)
	ListByCircle(ctx context.Context, circleID string) ([]*UserProfile, error)
	Update(ctx context.Context, id string, upd ProfileUpdate) (*UserProfile, error)
}

// ProfileUpdate carries the mutable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	FullName     *string
	PasswordHash *string
}

// CaseStore manages cases. Create must also insert the primary circle link
// so that the primary circle is entitled from the first visible state.
type CaseStore interface {
	Create(ctx context.Context, c *Case) error
	Find(ctx context.Context, id string) (*Case, error)
	FindByNumber(ctx context.Context, caseNumber string) (*Case, error)
	ListEntitled(ctx context.Context, circleID string) ([]*Case, error)
	Update(ctx context.Context, id string, upd CaseUpdate) (*Case, error)
}

// CaseUpdate carries the mutable case fields. Nil means unchanged.
type CaseUpdate struct {
	Title         *string
	Description   *string
	Status        *CaseStatus
	Priority      *Priority
	AssignedJudge *string
}

// LinkStore manages case-circle links. Links are add-only.
type LinkStore interface {
	// Add inserts the link unless one already exists for the (case, circle)
	// pair. It reports whether a new row was created.
	Add(ctx context.Context, l *CaseCircleLink) (bool, error)
	ListByCase(ctx context.Context, caseID string) ([]*CaseCircleLink, error)
}

// ThreadStore manages discussion threads.
type ThreadStore interface {
	Create(ctx context.Context, t *Thread) error
	Find(ctx context.Context, id string) (*Thread, error)
	ListByCase(ctx context.Context, caseID string) ([]*Thread, error)
}

// MessageStore manages thread messages.
type MessageStore interface {
	Create(ctx context.Context, m *Message) error
	Find(ctx context.Context, id string) (*Message, error)
	ListByThread(ctx context.Context, threadID string) ([]*Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (*Message, error)
}

// DocumentStore manages document metadata. File bytes live in blob storage.
type DocumentStore interface {
	Create(ctx context.Context, d *Document) error
	Find(ctx context.Context, id string) (*Document, error)
	ListByCase(ctx context.Context, caseID string) ([]*Document, error)
}
