package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// Smoke test against a running instance: authenticate, run a lookup by
// customer key and check the secret column is masked, then search by the
// secret itself and check it is revealed.

const maskToken = "••••••••"

type authResponse struct {
	Status string `json:"status"`
	Role   string `json:"role"`
	Token  string `json:"token"`
}

type lookupResponse struct {
	Status  string `json:"status"`
	Matches []struct {
		Fields         map[string]string `json:"fields"`
		SecretRevealed bool              `json:"secret_revealed"`
	} `json:"matches"`
}

func main() {
	base := os.Getenv("SNITCH_API_ADDR")
	if base == "" {
		base = "http://localhost:8080"
	}
	code := os.Getenv("SNITCH_SMOKE_CODE")
	if code == "" {
		code = "batman"
	}
	key := os.Getenv("SNITCH_SMOKE_KEY")
	if key == "" {
		key = "42"
	}
	secret := os.Getenv("SNITCH_SMOKE_SECRET")
	if secret == "" {
		secret = "hunter2"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	identity := fmt.Sprintf("smoke-%d", rand.Int())

	resp, err := client.Get(base + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		log.Fatalf("healthz: err=%v status=%v", err, statusOf(resp))
	}
	resp.Body.Close()

	var auth authResponse
	post(client, base+"/v1/auth", "", map[string]any{"identity": identity, "code": code}, &auth)
	if auth.Status != "granted" || auth.Token == "" {
		log.Fatalf("auth failed: %+v", auth)
	}

	var byKey lookupResponse
	post(client, base+"/v1/lookup", auth.Token, map[string]any{"query": key}, &byKey)
	if byKey.Status != "ok" || len(byKey.Matches) == 0 {
		log.Fatalf("lookup by key %q: %+v", key, byKey)
	}
	if got := byKey.Matches[0].Fields["secret"]; got != maskToken {
		log.Fatalf("secret not masked for key lookup: %q", got)
	}

	var bySecret lookupResponse
	post(client, base+"/v1/lookup", auth.Token, map[string]any{"query": secret}, &bySecret)
	if bySecret.Status != "ok" || len(bySecret.Matches) == 0 {
		log.Fatalf("lookup by secret: %+v", bySecret)
	}
	if !bySecret.Matches[0].SecretRevealed || bySecret.Matches[0].Fields["secret"] != secret {
		log.Fatalf("secret-supplied lookup must reveal: %+v", bySecret.Matches[0])
	}

	fmt.Printf("✅ snitch smoke test passed: identity=%s role=%s\n", identity, auth.Role)
}

func post(client *http.Client, url, token string, body any, out any) {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal %s: %v", url, err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("request %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("post %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Fatalf("decode %s: %v", url, err)
	}
}

func statusOf(r *http.Response) any {
	if r == nil {
		return "none"
	}
	return r.StatusCode
}
