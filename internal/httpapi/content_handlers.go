package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"curia.org/internal/authz"
	"curia.org/internal/blob"
	"curia.org/internal/ids"
	"curia.org/internal/policy"
	"curia.org/internal/registry"
)

type createThreadRequest struct {
	Title string `json:"title"`
}

type messageRequest struct {
	Content string `json:"content"`
}

func (a *API) handleThreadResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/threads/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	threadID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getThread(w, r, threadID)
	case len(parts) == 2 && parts[1] == "messages":
		switch r.Method {
		case http.MethodGet:
			a.listMessages(w, r, threadID)
		case http.MethodPost:
			a.sendMessage(w, r, threadID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleMessageResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/messages/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getMessage(w, r, id)
	case http.MethodPatch:
		a.editMessage(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) handleDocumentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/documents/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	docID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getDocument(w, r, docID)
	case len(parts) == 2 && parts[1] == "content":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.downloadDocument(w, r, docID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listThreads(w http.ResponseWriter, r *http.Request, caseID string) {
	if _, err := a.engine.CanView(r.Context(), a.actor(r), authz.Ref{Kind: policy.KindThread, CaseID: caseID}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	items, err := a.store.Threads(r.Context()).ListByCase(r.Context(), caseID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*registry.Thread]{Items: items, AsOf: time.Now().UTC()})
}

func (a *API) createThread(w http.ResponseWriter, r *http.Request, caseID string) {
	var req createThreadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, r, http.StatusBadRequest, "title is required")
		return
	}

	if _, err := a.engine.CanMutate(r.Context(), a.actor(r), policy.ActionCreate, authz.Ref{Kind: policy.KindThread, CaseID: caseID}); err != nil {
		handleDomainError(w, r, err)
		return
	}

	t := &registry.Thread{
		ID:        ids.New(),
		CaseID:    caseID,
		Title:     req.Title,
		CreatedBy: a.actor(r),
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.Threads(r.Context()).Create(r.Context(), t); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "thread.create", "thread", t.ID, map[string]string{
		"case_id": caseID,
	})
	w.Header().Set("Location", "/v1/threads/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) getThread(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := a.engine.CanView(r.Context(), a.actor(r), authz.Ref{Kind: policy.KindThread, ID: id}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	t, err := a.store.Threads(r.Context()).Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request, threadID string) {
	if _, err := a.engine.CanView(r.Context(), a.actor(r), authz.Ref{Kind: policy.KindMessage, ThreadID: threadID}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	items, err := a.store.Messages(r.Context()).ListByThread(r.Context(), threadID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*registry.Message]{Items: items, AsOf: time.Now().UTC()})
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request, threadID string) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, r, http.StatusBadRequest, "content is required")
		return
	}

	if _, err := a.engine.CanMutate(r.Context(), a.actor(r), policy.ActionSendMessage, authz.Ref{Kind: policy.KindMessage, ThreadID: threadID}); err != nil {
		handleDomainError(w, r, err)
		return
	}

	m := &registry.Message{
		ID:        ids.New(),
		ThreadID:  threadID,
		Content:   req.Content,
		SenderID:  a.actor(r),
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.Messages(r.Context()).Create(r.Context(), m); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "message.send", "message", m.ID, map[string]string{
		"thread_id": threadID,
	})
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) getMessage(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := a.engine.CanView(r.Context(), a.actor(r), authz.Ref{Kind: policy.KindMessage, ID: id}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	m, err := a.store.Messages(r.Context()).Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// editMessage: only the sender may revise content; the engine enforces that
// and the edit timestamp marks the revision.
func (a *API) editMessage(w http.ResponseWriter, r *http.Request, id string) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, r, http.StatusBadRequest, "content is required")
		return
	}

	if _, err := a.engine.CanMutate(r.Context(), a.actor(r), policy.ActionUpdate, authz.Ref{Kind: policy.KindMessage, ID: id}); err != nil {
		handleDomainError(w, r, err)
		return
	}

	m, err := a.store.Messages(r.Context()).UpdateContent(r.Context(), id, req.Content, time.Now().UTC())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "message.edit", "message", id, map[string]string{
		"thread_id": m.ThreadID,
	})
	writeJSON(w, http.StatusOK, m)
}

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request, caseID string) {
	if _, err := a.engine.CanView(r.Context(), a.actor(r), authz.Ref{Kind: policy.KindDocument, CaseID: caseID}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	items, err := a.store.Documents(r.Context()).ListByCase(r.Context(), caseID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*registry.Document]{Items: items, AsOf: time.Now().UTC()})
}

// uploadDocument stores the file bytes first and the metadata row second; an
// orphaned blob is harmless, a dangling row is not.
func (a *API) uploadDocument(w http.ResponseWriter, r *http.Request, caseID string) {
	if a.blobs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "document storage disabled")
		return
	}

	if _, err := a.engine.CanMutate(r.Context(), a.actor(r), policy.ActionUploadDocument, authz.Ref{Kind: policy.KindDocument, CaseID: caseID}); err != nil {
		handleDomainError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, r, http.StatusBadRequest, "file name is required")
		return
	}

	docID := ids.New()
	key := blob.Key(caseID, docID, header.Filename)
	contentType := header.Header.Get("Content-Type")

	if err := a.blobs.Put(r.Context(), key, file, contentType, header.Size); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "document storage failed")
		return
	}

	doc := &registry.Document{
		ID:            docID,
		CaseID:        caseID,
		FileName:      header.Filename,
		FilePath:      key,
		FileType:      contentType,
		FileSize:      header.Size,
		ExtractedText: r.FormValue("extracted_text"),
		UploadedBy:    a.actor(r),
		UploadedAt:    time.Now().UTC(),
	}
	if err := a.store.Documents(r.Context()).Create(r.Context(), doc); err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "document.upload", "document", doc.ID, map[string]string{
		"case_id":   caseID,
		"file_name": doc.FileName,
		"file_size": strconv.FormatInt(doc.FileSize, 10),
	})
	w.Header().Set("Location", "/v1/documents/"+doc.ID)
	writeJSON(w, http.StatusCreated, doc)
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := a.engine.CanView(r.Context(), a.actor(r), authz.Ref{Kind: policy.KindDocument, ID: id}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	doc, err := a.store.Documents(r.Context()).Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) downloadDocument(w http.ResponseWriter, r *http.Request, id string) {
	if a.blobs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "document storage disabled")
		return
	}

	if _, err := a.engine.CanView(r.Context(), a.actor(r), authz.Ref{Kind: policy.KindDocument, ID: id}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	doc, err := a.store.Documents(r.Context()).Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	// Optional presigned redirect for S3-backed storage; local storage falls
	// through to direct streaming.
	if r.URL.Query().Get("presign") == "1" {
		if u, err := a.blobs.SignedURL(r.Context(), doc.FilePath, a.presignTTL); err == nil && strings.HasPrefix(u, "http") {
			http.Redirect(w, r, u, http.StatusTemporaryRedirect)
			return
		}
	}

	rc, contentType, err := a.blobs.Get(r.Context(), doc.FilePath)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	defer rc.Close()

	if doc.FileType != "" {
		contentType = doc.FileType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(doc.FileName, `"`, "")+`"`)
	if doc.FileSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.FileSize, 10))
	}
	_, _ = io.Copy(w, rc)
}
