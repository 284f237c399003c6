package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/metrics":                        "/metrics",
		"/v1/cases":                       "/v1/cases",
		"/v1/cases/01ABC":                 "/v1/cases/:id",
		"/v1/cases/01ABC/threads":         "/v1/cases/:id/threads",
		"/v1/cases/01ABC/collaborators":   "/v1/cases/:id/collaborators",
		"/v1/cases/01ABC/extra":           "/v1/cases/01ABC/extra",
		"/v1/threads/01ABC/messages":      "/v1/threads/:id/messages",
		"/v1/documents/01ABC/content":     "/v1/documents/:id/content",
		"/v1/circles/01ABC":               "/v1/circles/:id",
		"/v1/audit":                       "/v1/audit",
		"/v1/audit?action=case.view":      "/v1/audit",
		"/v1/unknown/01ABC":               "/v1/unknown/01ABC",
		"/v1/cases/01ABC?include=threads": "/v1/cases/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
