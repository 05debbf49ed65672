package authflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExchangeClientCredentials_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.FormValue("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant_type: %s", r.FormValue("grant_type"))
		}
		if r.FormValue("client_id") != "id-1" || r.FormValue("client_secret") != "secret-1" {
			t.Errorf("unexpected client credentials in form: %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "m2m-token",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	tok, err := ExchangeClientCredentials(context.Background(), server.URL, "id-1", "secret-1")
	if err != nil {
		t.Fatalf("ExchangeClientCredentials failed: %v", err)
	}
	if tok.AccessToken != "m2m-token" {
		t.Errorf("unexpected access token: %s", tok.AccessToken)
	}
}

func TestExchangeClientCredentials_RetriesTransientThenFails(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := ExchangeClientCredentials(context.Background(), server.URL, "id-1", "secret-1")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts < 2 {
		t.Errorf("expected multiple attempts on transient failures, got %d", attempts)
	}
}

func TestExchangeClientCredentials_MissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer server.Close()

	_, err := ExchangeClientCredentials(context.Background(), server.URL, "id-1", "secret-1")
	if err == nil {
		t.Fatal("expected error for missing access_token")
	}
}
