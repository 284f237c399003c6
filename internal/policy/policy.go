// Package policy evaluates access-control decisions for the case registry.
// Decide is a pure function over immutable snapshots: it performs no I/O,
// holds no state, and is safe for unlimited concurrent use.
package policy

import (
	"curia.org/internal/registry"
)

// Action is a gated operation.
type Action string

const (
	ActionView                Action = "view"
	ActionCreate              Action = "create"
	ActionUpdate              Action = "update"
	ActionManageCollaboration Action = "manage_collaboration"
	ActionSendMessage         Action = "send_message"
	ActionUploadDocument      Action = "upload_document"
	ActionViewAudit           Action = "view_audit"
)

func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionUpdate, ActionManageCollaboration,
		ActionSendMessage, ActionUploadDocument, ActionViewAudit:
		return true
	}
	return false
}

// Mutating reports whether the action writes state.
func (a Action) Mutating() bool {
	return a != ActionView && a != ActionViewAudit
}

// ResourceKind names the kind of target a decision is about.
type ResourceKind string

const (
	KindCircle   ResourceKind = "circle"
	KindProfile  ResourceKind = "profile"
	KindCase     ResourceKind = "case"
	KindThread   ResourceKind = "thread"
	KindMessage  ResourceKind = "message"
	KindDocument ResourceKind = "document"
	KindAudit    ResourceKind = "audit"
)

func (k ResourceKind) Valid() bool {
	switch k {
	case KindCircle, KindProfile, KindCase, KindThread, KindMessage, KindDocument, KindAudit:
		return true
	}
	return false
}

// CaseScoped reports whether access to the kind is derived from a case's
// entitled circle set.
func (k ResourceKind) CaseScoped() bool {
	switch k {
	case KindCase, KindThread, KindMessage, KindDocument:
		return true
	}
	return false
}

// Resource is a snapshot of the decision target, resolved before evaluation.
// For case-scoped kinds the parent case context must be populated; threads,
// messages and documents carry no access state of their own.
type Resource struct {
	Kind ResourceKind
	ID   string

	// Parent case context, set for case-scoped kinds.
	CaseID          string
	PrimaryCircleID string
	Entitled        registry.CircleSet

	// SenderID is set for messages.
	SenderID string
}

// Decision is the evaluation result. Conceal marks denials that must be
// indistinguishable from the resource not existing.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Rule    string `json:"rule"`
	Reason  string `json:"reason"`
	Conceal bool   `json:"-"`
}

func allow(rule, reason string) Decision {
	return Decision{Allowed: true, Rule: rule, Reason: reason}
}

func deny(rule, reason string, conceal bool) Decision {
	return Decision{Allowed: false, Rule: rule, Reason: reason, Conceal: conceal}
}

// Decide evaluates whether actor may perform action on res. Rules are
// checked in priority order and the first match wins. Unknown combinations
// fall through to a deny.
func Decide(actor registry.UserProfile, action Action, res Resource) Decision {
	// Appending audit entries is never gated; otherwise recording a denial
	// would itself require a decision.
	if res.Kind == KindAudit && action == ActionCreate {
		return allow("audit_append", "audit appends are never gated")
	}

	entitled := res.Kind.CaseScoped() && res.Entitled.Has(actor.HomeCircleID)
	// Denials on case-scoped resources the actor cannot see are concealed so
	// the caller cannot probe for existence.
	hide := res.Kind.CaseScoped() && !entitled

	switch res.Kind {
	case KindCircle:
		if action == ActionView {
			if res.ID == actor.HomeCircleID {
				return allow("circle_self_view", "own home circle")
			}
			return deny("circle_self_view", "not the actor's home circle", false)
		}

	case KindProfile:
		if action == ActionView || action == ActionUpdate {
			if res.ID == actor.ID {
				return allow("profile_self", "own profile")
			}
			return deny("profile_self", "not the actor's profile", false)
		}

	case KindCase:
		switch action {
		case ActionView:
			if entitled {
				return allow("case_view_entitled", "home circle is entitled")
			}
			return deny("case_view_entitled", "home circle is not entitled", true)
		case ActionCreate:
			if authoringRole(actor.Role) {
				return allow("case_create_role", "role may author cases")
			}
			return deny("case_create_role", "role may not author cases", false)
		case ActionUpdate:
			if authoringRole(actor.Role) && actor.HomeCircleID == res.PrimaryCircleID {
				return allow("case_update_primary", "authoring role in primary circle")
			}
			return deny("case_update_primary", "requires authoring role in the primary circle", hide)
		case ActionManageCollaboration:
			if authoringRole(actor.Role) && actor.HomeCircleID == res.PrimaryCircleID {
				return allow("collaboration_primary", "authoring role in primary circle")
			}
			return deny("collaboration_primary", "requires authoring role in the primary circle", hide)
		}

	case KindThread:
		switch action {
		case ActionView, ActionCreate:
			if entitled {
				return allow("case_content_entitled", "home circle is entitled to the case")
			}
			return deny("case_content_entitled", "home circle is not entitled to the case", true)
		}

	case KindMessage:
		switch action {
		case ActionView, ActionSendMessage:
			if entitled {
				return allow("case_content_entitled", "home circle is entitled to the case")
			}
			return deny("case_content_entitled", "home circle is not entitled to the case", true)
		case ActionUpdate:
			if !entitled {
				return deny("message_sender_edit", "home circle is not entitled to the case", true)
			}
			if res.SenderID == actor.ID {
				return allow("message_sender_edit", "sender may edit own message")
			}
			return deny("message_sender_edit", "only the sender may edit a message", false)
		}

	case KindDocument:
		switch action {
		case ActionView, ActionUploadDocument:
			if entitled {
				return allow("case_content_entitled", "home circle is entitled to the case")
			}
			return deny("case_content_entitled", "home circle is not entitled to the case", true)
		}

	case KindAudit:
		if action == ActionViewAudit {
			if actor.Role == registry.RoleJudge {
				return allow("audit_judge_view", "judges may inspect the audit trail")
			}
			return deny("audit_judge_view", "only judges may inspect the audit trail", false)
		}
	}

	return deny("default_deny", "no rule permits this action", hide)
}

// authoringRole reports whether the role may create and administer cases.
func authoringRole(r registry.Role) bool {
	return r == registry.RoleJudge || r == registry.RoleClerk
}
