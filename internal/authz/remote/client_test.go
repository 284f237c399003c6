package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"curia.org/internal/authz"
	"curia.org/internal/registry"
)

func TestCheckForwardsIdentityAndDecodes(t *testing.T) {
	var gotAuth string
	var gotReq CheckRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/authz/check" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(CheckResponse{Allowed: true, Rule: "case_view_entitled", Reason: "home circle is entitled"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithToken("service-token"))
	ctx := WithBearer(context.Background(), "user-token")

	resp, err := client.CanView(ctx, "case", "case1")
	if err != nil {
		t.Fatalf("CanView: %v", err)
	}
	if !resp.Allowed || resp.Rule != "case_view_entitled" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotAuth != "Bearer user-token" {
		t.Fatalf("per-call bearer not forwarded: %q", gotAuth)
	}
	if gotReq.Action != "view" || gotReq.ResourceType != "case" || gotReq.ResourceID != "case1" {
		t.Fatalf("unexpected check request: %+v", gotReq)
	}
}

func TestCheckUsesDefaultToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(CheckResponse{Allowed: false, Rule: "audit_judge_view", Reason: "only judges"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithToken("service-token"))
	resp, err := client.CanView(context.Background(), "audit", "")
	if err != nil {
		t.Fatalf("CanView: %v", err)
	}
	if resp.Allowed {
		t.Fatal("expected denied decision with nil error")
	}
	if gotAuth != "Bearer service-token" {
		t.Fatalf("default bearer not used: %q", gotAuth)
	}
}

func TestCheckMapsStatuses(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusBadRequest, registry.ErrInvalidInput},
		{http.StatusServiceUnavailable, authz.ErrStoreUnavailable},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client := NewClient(srv.URL)
		_, err := client.CanMutate(context.Background(), "update", "case", "case1")
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
		srv.Close()
	}
}

func TestCheckConcealedPresentation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CheckResponse{Allowed: false, Rule: "not_found", Reason: "resource not found", Conceal: true})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	resp, err := client.CanView(context.Background(), "case", "ghost")
	if err != nil {
		t.Fatalf("CanView: %v", err)
	}
	if resp.Allowed || !resp.Conceal {
		t.Fatalf("expected concealed denial, got %+v", resp)
	}
}
