package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"curia.org/internal/authn"
	"curia.org/internal/authz"
	"curia.org/internal/blob"
	"curia.org/internal/ids"
	"curia.org/internal/policy"
	"curia.org/internal/registry"
)

type createCaseRequest struct {
	CaseNumber    string `json:"case_number"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Priority      string `json:"priority"`
	AssignedJudge string `json:"assigned_judge"`
}

type updateCaseRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Status        *string `json:"status"`
	Priority      *string `json:"priority"`
	AssignedJudge *string `json:"assigned_judge"`
}

type updateProfileRequest struct {
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
}

type addCollaboratorRequest struct {
	CircleID string `json:"circle_id"`
	Role     string `json:"role"`
}

type listResponse[T any] struct {
	Items []T       `json:"items"`
	AsOf  time.Time `json:"as_of"`
}

func (a *API) handleCircleResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/circles/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, err := a.engine.CanView(r.Context(), a.actor(r), authz.Ref{Kind: policy.KindCircle, ID: id}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	circle, err := a.store.Circles(r.Context()).Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, circle)
}

func (a *API) handleProfileResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/profiles/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getProfile(w, r, id)
	case http.MethodPatch:
		a.updateProfile(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) getProfile(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := a.engine.CanView(r.Context(), a.actor(r), authz.Ref{Kind: policy.KindProfile, ID: id}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	profile, err := a.store.Profiles(r.Context()).Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request, id string) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.FullName == nil && req.Password == nil {
		writeError(w, r, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.FullName != nil && strings.TrimSpace(*req.FullName) == "" {
		writeError(w, r, http.StatusBadRequest, "full_name must not be empty")
		return
	}
	if req.Password != nil && len(*req.Password) < authn.MinPasswordLen {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("password must be at least %d characters", authn.MinPasswordLen))
		return
	}

	if _, err := a.engine.CanMutate(r.Context(), a.actor(r), policy.ActionUpdate, authz.Ref{Kind: policy.KindProfile, ID: id}); err != nil {
		handleDomainError(w, r, err)
		return
	}

	upd := registry.ProfileUpdate{FullName: req.FullName}
	var changed []string
	if req.FullName != nil {
		changed = append(changed, "full_name")
	}
	if req.Password != nil {
		hash, err := authn.HashPassword(*req.Password)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		upd.PasswordHash = &hash
		changed = append(changed, "password")
	}

	profile, err := a.store.Profiles(r.Context()).Update(r.Context(), id, upd)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "profile.update", "profile", id, map[string]string{
		"fields": strings.Join(changed, ","),
	})
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleCasesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createCase(w, r)
	case http.MethodGet:
		a.listCases(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCaseResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/cases/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	caseID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getCase(w, r, caseID)
		case http.MethodPatch:
			a.updateCase(w, r, caseID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
		}
	case len(parts) == 2 && parts[1] == "collaborators":
		switch r.Method {
		case http.MethodGet:
			a.listCollaborators(w, r, caseID)
		case http.MethodPost:
			a.addCollaborator(w, r, caseID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 2 && parts[1] == "threads":
		switch r.Method {
		case http.MethodGet:
			a.listThreads(w, r, caseID)
		case http.MethodPost:
			a.createThread(w, r, caseID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 2 && parts[1] == "documents":
		switch r.Method {
		case http.MethodGet:
			a.listDocuments(w, r, caseID)
		case http.MethodPost:
			a.uploadDocument(w, r, caseID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createCase(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	req.CaseNumber = strings.TrimSpace(req.CaseNumber)
	req.Title = strings.TrimSpace(req.Title)
	if req.CaseNumber == "" || req.Title == "" {
		writeError(w, r, http.StatusBadRequest, "case_number and title are required")
		return
	}
	priority := registry.PriorityMedium
	if req.Priority != "" {
		priority = registry.Priority(req.Priority)
		if !priority.Valid() {
			writeError(w, r, http.StatusBadRequest, "invalid priority")
			return
		}
	}

	actor := a.actor(r)
	if _, err := a.engine.CanMutate(r.Context(), actor, policy.ActionCreate, authz.Ref{Kind: policy.KindCase}); err != nil {
		handleDomainError(w, r, err)
		return
	}

	// The creator's home circle becomes the primary circle; the request
	// cannot place a case elsewhere.
	creator, err := a.store.Profiles(r.Context()).Find(r.Context(), actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	now := time.Now().UTC()
	c := &registry.Case{
		ID:              ids.New(),
		CaseNumber:      req.CaseNumber,
		Title:           req.Title,
		Description:     req.Description,
		Status:          registry.StatusOpen,
		Priority:        priority,
		PrimaryCircleID: creator.HomeCircleID,
		CreatedBy:       creator.ID,
		AssignedJudge:   strings.TrimSpace(req.AssignedJudge),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.store.Cases(r.Context()).Create(r.Context(), c); err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "case.create", "case", c.ID, map[string]string{
		"case_number":    c.CaseNumber,
		"primary_circle": c.PrimaryCircleID,
	})

	w.Header().Set("Location", "/v1/cases/"+c.ID)
	writeJSON(w, http.StatusCreated, c)
}

// listCases returns the cases the actor's home circle is entitled to. The
// filter is part of the query itself, so no per-case decision is evaluated.
func (a *API) listCases(w http.ResponseWriter, r *http.Request) {
	creator, err := a.store.Profiles(r.Context()).Find(r.Context(), a.actor(r))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			unauthorized(w, r, "unknown actor")
			return
		}
		handleDomainError(w, r, err)
		return
	}
	items, err := a.store.Cases(r.Context()).ListEntitled(r.Context(), creator.HomeCircleID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*registry.Case]{Items: items, AsOf: time.Now().UTC()})
}

func (a *API) getCase(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := a.engine.CanView(r.Context(), a.actor(r), authz.Ref{Kind: policy.KindCase, ID: id}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	c, err := a.store.Cases(r.Context()).Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) updateCase(w http.ResponseWriter, r *http.Request, id string) {
	var req updateCaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	upd := registry.CaseUpdate{
		Title:         req.Title,
		Description:   req.Description,
		AssignedJudge: req.AssignedJudge,
	}
	var changed []string
	if req.Title != nil {
		changed = append(changed, "title")
	}
	if req.Description != nil {
		changed = append(changed, "description")
	}
	if req.Status != nil {
		status := registry.CaseStatus(*req.Status)
		if !status.Valid() {
			writeError(w, r, http.StatusBadRequest, "invalid status")
			return
		}
		upd.Status = &status
		changed = append(changed, "status")
	}
	if req.Priority != nil {
		priority := registry.Priority(*req.Priority)
		if !priority.Valid() {
			writeError(w, r, http.StatusBadRequest, "invalid priority")
			return
		}
		upd.Priority = &priority
		changed = append(changed, "priority")
	}
	if req.AssignedJudge != nil {
		changed = append(changed, "assigned_judge")
	}
	if len(changed) == 0 {
		writeError(w, r, http.StatusBadRequest, "nothing to update")
		return
	}

	if _, err := a.engine.CanMutate(r.Context(), a.actor(r), policy.ActionUpdate, authz.Ref{Kind: policy.KindCase, ID: id}); err != nil {
		handleDomainError(w, r, err)
		return
	}

	c, err := a.store.Cases(r.Context()).Update(r.Context(), id, upd)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "case.update", "case", id, map[string]string{
		"fields": strings.Join(changed, ","),
	})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) listCollaborators(w http.ResponseWriter, r *http.Request, caseID string) {
	if _, err := a.engine.CanView(r.Context(), a.actor(r), authz.Ref{Kind: policy.KindCase, ID: caseID}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	items, err := a.store.Links(r.Context()).ListByCase(r.Context(), caseID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*registry.CaseCircleLink]{Items: items, AsOf: time.Now().UTC()})
}

func (a *API) addCollaborator(w http.ResponseWriter, r *http.Request, caseID string) {
	var req addCollaboratorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.CircleID = strings.TrimSpace(req.CircleID)
	if req.CircleID == "" {
		writeError(w, r, http.StatusBadRequest, "circle_id is required")
		return
	}

	created, err := a.engine.AddCollaboration(r.Context(), caseID, req.CircleID, a.actor(r), registry.LinkRole(req.Role))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	role := req.Role
	if role == "" {
		role = string(registry.LinkCollaborating)
	}
	a.audit(r.Context(), "collaboration.add", "case", caseID, map[string]string{
		"circle_id": req.CircleID,
		"role":      role,
		"created":   strconv.FormatBool(created),
	})

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, map[string]any{
		"case_id":   caseID,
		"circle_id": req.CircleID,
		"role":      role,
		"created":   created,
	})
}

// --- helpers ---

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps engine and registry errors onto HTTP statuses.
// Concealed denials answer exactly like a missing resource.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case authz.Concealed(err):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, authz.ErrDenied):
		var de *authz.DeniedError
		msg := "permission denied"
		if errors.As(err, &de) && de.Decision.Reason != "" {
			msg = de.Decision.Reason
		}
		writeError(w, r, http.StatusForbidden, msg)
	case errors.Is(err, authz.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "decision could not be recorded")
	case errors.Is(err, registry.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, registry.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "storage unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
