package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"curia.org/internal/authz/remote"
)

// smoke runs an end-to-end scenario against a running curia-api and verifies
// the concealment invariant: a denied case-scoped decision must be
// indistinguishable from a decision about a case that does not exist. It
// needs two provisioned principals from different circles.
func main() {
	base := envOr("CURIA_API_URL", "http://localhost:8080")
	insider := envOr("CURIA_SMOKE_INSIDER", "J-100")
	outsider := envOr("CURIA_SMOKE_OUTSIDER", "J-400")
	password := os.Getenv("CURIA_SMOKE_PASSWORD")
	if password == "" {
		log.Fatal("CURIA_SMOKE_PASSWORD is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	insiderTok, err := obtainToken(ctx, base, insider, password)
	if err != nil {
		log.Fatalf("token for %s: %v", insider, err)
	}
	outsiderTok, err := obtainToken(ctx, base, outsider, password)
	if err != nil {
		log.Fatalf("token for %s: %v", outsider, err)
	}

	caseNumber := fmt.Sprintf("SMOKE-%d", rand.Int63())
	caseID, err := createCase(ctx, base, insiderTok, caseNumber)
	if err != nil {
		log.Fatalf("create case: %v", err)
	}

	checks := remote.NewClient(base)

	own, err := checks.CanView(remote.WithBearer(ctx, insiderTok), "case", caseID)
	if err != nil {
		log.Fatalf("insider check: %v", err)
	}
	if !own.Allowed {
		log.Fatalf("insider denied own case: rule=%s reason=%s", own.Rule, own.Reason)
	}

	denied, err := checks.CanView(remote.WithBearer(ctx, outsiderTok), "case", caseID)
	if err != nil {
		log.Fatalf("outsider check: %v", err)
	}
	missing, err := checks.CanView(remote.WithBearer(ctx, outsiderTok), "case", "no-such-case")
	if err != nil {
		log.Fatalf("missing-case check: %v", err)
	}

	if denied.Allowed {
		log.Fatalf("outsider allowed into case %s", caseID)
	}
	if !denied.Conceal {
		log.Fatalf("outsider denial not concealed: rule=%s", denied.Rule)
	}
	if denied != missing {
		log.Fatalf("concealment failed: denied=%+v missing=%+v", denied, missing)
	}

	fmt.Printf("✅ curia-api smoke test passed: case=%s (%s)\n", caseID, caseNumber)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func obtainToken(ctx context.Context, base, employeeID, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := postJSON(ctx, base+"/v1/auth/token", "", map[string]string{
		"employee_id": employeeID,
		"password":    password,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

func createCase(ctx context.Context, base, token, caseNumber string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := postJSON(ctx, base+"/v1/cases", token, map[string]string{
		"case_number": caseNumber,
		"title":       "Smoke check",
		"priority":    "low",
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func postJSON(ctx context.Context, url, token string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, msg)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
