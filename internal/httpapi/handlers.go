package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"curia.org/api/spec"
	"curia.org/internal/audit"
	"curia.org/internal/authn"
	"curia.org/internal/authz"
	"curia.org/internal/blob"
	"curia.org/internal/obs"
	"curia.org/internal/registry"
	"curia.org/internal/stream"
)

// ReadyProbe — простая проверка готовности (ping хранилища).
type ReadyProbe struct {
	Store registry.Store
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// Options wires the API dependencies. Zero values fall back to defaults
// suitable for tests.
type Options struct {
	Store    registry.Store
	Engine   *authz.Engine
	Recorder *audit.Recorder
	Trail    audit.Store
	Blobs    blob.Store
	Events   *stream.Stream
	Version  string

	TokenTTL   time.Duration
	MaxBody    int64
	RateRPS    int
	RateBurst  int
	CORSOrigin string
	PresignTTL time.Duration
}

// API — HTTP слой.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	store    registry.Store
	engine   *authz.Engine
	recorder *audit.Recorder
	trail    audit.Store
	blobs    blob.Store
	stream   *stream.Stream

	tokenTTL   time.Duration
	maxBody    int64
	ratePerSec int
	rateBurst  int
	corsOrigin string
	presignTTL time.Duration
}

func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: ReadyProbe{Store: opts.Store},
		version:    opts.Version,
		store:      opts.Store,
		engine:     opts.Engine,
		recorder:   opts.Recorder,
		trail:      opts.Trail,
		blobs:      opts.Blobs,
		stream:     opts.Events,
		tokenTTL:   opts.TokenTTL,
		maxBody:    opts.MaxBody,
		ratePerSec: opts.RateRPS,
		rateBurst:  opts.RateBurst,
		corsOrigin: opts.CORSOrigin,
		presignTTL: opts.PresignTTL,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 30 * time.Minute
	}
	if a.maxBody <= 0 {
		a.maxBody = 10 << 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 50
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 100
	}
	if a.presignTTL <= 0 {
		a.presignTTL = 15 * time.Minute
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// выдача токенов
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	// реестр: круги, профили, дела и содержимое дел
	a.mux.HandleFunc("/v1/circles/", a.handleCircleResource)
	a.mux.HandleFunc("/v1/profiles/", a.handleProfileResource)
	a.mux.HandleFunc("/v1/cases", a.handleCasesCollection)
	a.mux.HandleFunc("/v1/cases/", a.handleCaseResource)
	a.mux.HandleFunc("/v1/threads/", a.handleThreadResource)
	a.mux.HandleFunc("/v1/messages/", a.handleMessageResource)
	a.mux.HandleFunc("/v1/documents/", a.handleDocumentResource)

	// решения: журнал, точечная проверка, live-поток
	a.mux.HandleFunc("/v1/audit", a.handleAuditList)
	a.mux.HandleFunc("/v1/authz/check", a.handleAuthzCheck)
	a.mux.HandleFunc("/v1/authz/events", a.StreamEvents)

	// корень — 404
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler возвращает http.Handler с полной цепочкой middleware.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.corsOrigin)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	// метрики снаружи, чтобы учитывался каждый запрос
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "curia-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "curia-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// actor returns the authenticated profile id, empty when unauthenticated.
func (a *API) actor(r *http.Request) string {
	return actorFromContext(r.Context())
}

// audit appends a completion entry after a successful mutation. The gating
// decision entry is already durable by this point, so failures here are
// logged rather than surfaced.
func (a *API) audit(ctx context.Context, action, resourceType, resourceID string, details map[string]string) {
	a.auditAs(ctx, actorFromContext(ctx), action, resourceType, resourceID, details)
}

// auditAs is audit with an explicit subject, for paths where the actor is not
// yet on the context (token issuance).
func (a *API) auditAs(ctx context.Context, userID, action, resourceType, resourceID string, details map[string]string) {
	if a.recorder == nil {
		return
	}
	entry := audit.Entry{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	}
	if _, err := a.recorder.Record(ctx, entry); err != nil {
		obs.LogRequest(map[string]any{
			"level":  "error",
			"msg":    "completion_audit_failed",
			"action": action,
			"error":  err.Error(),
		})
	}
}

func actorFromContext(ctx context.Context) string {
	id, _ := authn.ActorFromContext(ctx)
	return id
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
