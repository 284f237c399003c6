package registry

import (
	"sort"
	"time"
)

// Role is the system-wide role of a user. There is no per-case role.
type Role string

const (
	RoleJudge   Role = "judge"
	RoleClerk   Role = "clerk"
	RoleTrainee Role = "trainee"
)

func (r Role) Valid() bool {
	switch r {
	case RoleJudge, RoleClerk, RoleTrainee:
		return true
	}
	return false
}

// CaseStatus is the lifecycle state of a case. Cases are never hard-deleted;
// closed is a status value like any other.
type CaseStatus string

const (
	StatusOpen        CaseStatus = "open"
	StatusInProgress  CaseStatus = "in_progress"
	StatusUnderReview CaseStatus = "under_review"
	StatusClosed      CaseStatus = "closed"
)

func (s CaseStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusUnderReview, StatusClosed:
		return true
	}
	return false
}

// Priority is the urgency of a case.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// LinkRole describes how a circle participates in a case. It is descriptive
// only: every link role grants the same access.
type LinkRole string

const (
	LinkPrimary       LinkRole = "primary"
	LinkCollaborating LinkRole = "collaborating"
	LinkConsulting    LinkRole = "consulting"
)

func (lr LinkRole) Valid() bool {
	switch lr {
	case LinkPrimary, LinkCollaborating, LinkConsulting:
		return true
	}
	return false
}

// Circle is an organizational unit (a chamber, department or working group).
type Circle struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserProfile is a member of exactly one home circle. PasswordHash backs
// token issuance and never leaves the process.
type UserProfile struct {
	ID           string    `json:"id"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	HomeCircleID string    `json:"home_circle_id"`
	EmployeeID   string    `json:"employee_id"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Case is the unit of sharing. Its primary circle is fixed at creation.
type Case struct {
	ID              string     `json:"id"`
	CaseNumber      string     `json:"case_number"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Status          CaseStatus `json:"status"`
	Priority        Priority   `json:"priority"`
	PrimaryCircleID string     `json:"primary_circle_id"`
	CreatedBy       string     `json:"created_by"`
	AssignedJudge   string     `json:"assigned_judge,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CaseCircleLink grants a circle access to a case. At most one link exists
// per (case, circle) pair, and links are add-only.
type CaseCircleLink struct {
	ID       string    `json:"id"`
	CaseID   string    `json:"case_id"`
	CircleID string    `json:"circle_id"`
	Role     LinkRole  `json:"role"`
	AddedAt  time.Time `json:"added_at"`
	AddedBy  string    `json:"added_by"`
}

// Thread is a discussion attached to a case.
type Thread struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"case_id"`
	Title     string    `json:"title"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a post within a thread.
type Message struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"thread_id"`
	Content   string     `json:"content"`
	SenderID  string     `json:"sender_id"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
}

// Document is an uploaded file attached to a case. ExtractedText is stored
// when supplied by the uploader; the service never computes it.
type Document struct {
	ID            string    `json:"id"`
	CaseID        string    `json:"case_id"`
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"`
	FileType      string    `json:"file_type"`
	FileSize      int64     `json:"file_size"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	UploadedBy    string    `json:"uploaded_by"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

// CircleSet is an unordered set of circle ids.
type CircleSet map[string]struct{}

// NewCircleSet builds a set from the given ids.
func NewCircleSet(ids ...string) CircleSet {
	s := make(CircleSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s CircleSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s CircleSet) Add(id string) {
	s[id] = struct{}{}
}

// IDs returns the members in sorted order.
func (s CircleSet) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
