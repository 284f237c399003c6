package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"curia.org/internal/authn"
	"curia.org/internal/registry"
)

type tokenRequest struct {
	EmployeeID string `json:"employee_id"`
	Password   string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ProfileID string    `json:"profile_id"`
}

// handleAuthToken exchanges employee credentials for a bearer token. Unknown
// employee ids and wrong passwords answer identically; both attempts land in
// the audit trail.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	employeeID := strings.TrimSpace(req.EmployeeID)
	if employeeID == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "employee_id and password are required")
		return
	}

	user, err := a.store.Profiles(r.Context()).FindByEmployeeID(r.Context(), employeeID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			a.auditAs(r.Context(), "", "auth.token.denied", "profile", "", map[string]string{
				"employee_id": employeeID,
				"reason":      "unknown employee id",
			})
			unauthorized(w, r, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusServiceUnavailable, "profile lookup failed")
		return
	}

	if err := authn.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		a.auditAs(r.Context(), user.ID, "auth.token.denied", "profile", user.ID, map[string]string{
			"employee_id": employeeID,
			"reason":      "password mismatch",
		})
		unauthorized(w, r, "invalid credentials")
		return
	}

	token, err := authn.GenerateToken(user.ID, string(user.Role), user.HomeCircleID, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	expiresAt := time.Now().UTC().Add(a.tokenTTL)

	a.auditAs(r.Context(), user.ID, "auth.token.issued", "profile", user.ID, map[string]string{
		"employee_id": employeeID,
		"expires_at":  expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ProfileID: user.ID,
	})
}
