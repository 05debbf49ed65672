package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fluidzero/fz-cli/pkg/models"
)

func TestRequestDeviceCode_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.FormValue("client_id") != "client-abc" {
			t.Errorf("unexpected client_id: %s", r.FormValue("client_id"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dc-1",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://example.com/device",
			"expires_in":       300,
			"interval":         5,
		})
	}))
	defer server.Close()

	restore := overrideDeviceAuthURL(server.URL)
	defer restore()

	dc, err := RequestDeviceCode(context.Background(), "client-abc")
	if err != nil {
		t.Fatalf("RequestDeviceCode failed: %v", err)
	}
	if dc.UserCode != "ABCD-1234" {
		t.Errorf("unexpected user code: %s", dc.UserCode)
	}
}

func TestPollForToken_AuthorizationPendingThenSuccess(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		if attempts < 2 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "authorization_pending"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "tok",
			"refresh_token": "ref",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	restore := overrideDeviceTokenURL(server.URL)
	defer restore()

	dc := &models.DeviceCodeResponse{DeviceCode: "dc-1", ExpiresIn: 100, Interval: 1}
	tok, err := PollForToken(context.Background(), "client-abc", dc)
	if err != nil {
		t.Fatalf("PollForToken failed: %v", err)
	}
	if tok.AccessToken != "tok" {
		t.Errorf("unexpected access token: %s", tok.AccessToken)
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestPollForToken_AccessDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "access_denied"})
	}))
	defer server.Close()

	restore := overrideDeviceTokenURL(server.URL)
	defer restore()

	dc := &models.DeviceCodeResponse{DeviceCode: "dc-1", ExpiresIn: 100, Interval: 1}
	_, err := PollForToken(context.Background(), "client-abc", dc)
	if err == nil {
		t.Fatal("expected error on access_denied")
	}
	if !strings.Contains(err.Error(), "authentication failed") {
		t.Errorf("expected authentication failed message, got %q", err.Error())
	}
}

func TestPollForToken_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "authorization_pending"})
	}))
	defer server.Close()

	restore := overrideDeviceTokenURL(server.URL)
	defer restore()

	dc := &models.DeviceCodeResponse{DeviceCode: "dc-1", ExpiresIn: 1, Interval: 2}
	_, err := PollForToken(context.Background(), "client-abc", dc)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var timeoutErr *ErrTimeout
	if !errors.As(err, &timeoutErr) {
		t.Errorf("expected ErrTimeout, got %T: %v", err, err)
	}
}

func overrideDeviceAuthURL(url string) func() {
	orig := deviceAuthURL
	deviceAuthURL = url
	return func() { deviceAuthURL = orig }
}

func overrideDeviceTokenURL(url string) func() {
	orig := deviceTokenURL
	deviceTokenURL = url
	return func() { deviceTokenURL = orig }
}
