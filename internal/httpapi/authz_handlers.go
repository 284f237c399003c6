package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"curia.org/internal/audit"
	"curia.org/internal/authz"
	"curia.org/internal/policy"
	"curia.org/internal/registry"
)

type checkRequest struct {
	Action       string `json:"action"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`
	CaseID       string `json:"case_id,omitempty"`
	ThreadID     string `json:"thread_id,omitempty"`
}

type checkResponse struct {
	Allowed bool   `json:"allowed"`
	Rule    string `json:"rule"`
	Reason  string `json:"reason"`
	Conceal bool   `json:"conceal"`
}

// handleAuditList serves the audit trail. Reading the trail is itself a gated
// decision, so the listing leaves its own trace.
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	if _, err := a.engine.CanView(r.Context(), a.actor(r), authz.Ref{Kind: policy.KindAudit}); err != nil {
		handleDomainError(w, r, err)
		return
	}

	q := r.URL.Query()
	f := audit.Filter{
		UserID:       strings.TrimSpace(q.Get("user_id")),
		Action:       strings.TrimSpace(q.Get("action")),
		ResourceType: strings.TrimSpace(q.Get("resource_type")),
		ResourceID:   strings.TrimSpace(q.Get("resource_id")),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "until must be RFC3339")
			return
		}
		f.Until = t
	}
	limit, err := parsePositiveInt(q.Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	f.Limit = limit
	offset, err := parsePositiveInt(q.Get("offset"), 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	f.Offset = offset

	entries, err := a.trail.List(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*audit.Entry]{Items: entries, AsOf: time.Now().UTC()})
}

// handleAuthzCheck evaluates a single decision without performing the
// operation. The evaluation is recorded like any other decision. A decided
// outcome answers 200 whether allowed or denied; concealed denials answer
// exactly as if the resource did not exist.
func (a *API) handleAuthzCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req checkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	action := policy.Action(strings.TrimSpace(req.Action))
	if !action.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown action")
		return
	}
	kind := policy.ResourceKind(strings.TrimSpace(req.ResourceType))
	if !kind.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown resource type")
		return
	}

	ref := authz.Ref{
		Kind:     kind,
		ID:       strings.TrimSpace(req.ResourceID),
		CaseID:   strings.TrimSpace(req.CaseID),
		ThreadID: strings.TrimSpace(req.ThreadID),
	}

	var (
		d   policy.Decision
		err error
	)
	if action.Mutating() {
		d, err = a.engine.CanMutate(r.Context(), a.actor(r), action, ref)
	} else {
		// Read actions normalize to the kind's applicable read rule.
		d, err = a.engine.CanView(r.Context(), a.actor(r), ref)
	}

	switch {
	case err == nil, errors.Is(err, authz.ErrDenied), errors.Is(err, registry.ErrNotFound):
		// Decided, allowed or denied.
	case errors.Is(err, registry.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	default:
		writeError(w, r, http.StatusServiceUnavailable, "decision could not be recorded")
		return
	}

	resp := checkResponse{Allowed: d.Allowed, Rule: d.Rule, Reason: d.Reason, Conceal: d.Conceal}
	if !d.Allowed && d.Conceal {
		// A concealed denial and a missing resource must be indistinguishable,
		// here as on every other endpoint.
		resp.Rule = "not_found"
		resp.Reason = "resource not found"
	}
	writeJSON(w, http.StatusOK, resp)
}
