package tokenmgr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fluidzero/fz-cli/internal/config"
)

func withConfigDir(t *testing.T) {
	t.Helper()
	t.Setenv("FZ_CONFIG_DIR", t.TempDir())
	_ = config.EnsureDirectories()
}

func TestIsExpired_BoundaryConditions(t *testing.T) {
	m := New("https://api.example.com")

	m.expiresAt = time.Now().Add(61 * time.Second).Unix()
	if m.IsExpired() {
		t.Error("token with 61s left should not be expired")
	}

	m.expiresAt = time.Now().Add(60 * time.Second).Unix()
	if !m.IsExpired() {
		t.Error("token with exactly 60s left should be expired (skew buffer boundary)")
	}

	m.expiresAt = time.Now().Add(-10 * time.Second).Unix()
	if !m.IsExpired() {
		t.Error("token already past expiry should be expired")
	}
}

func TestSetTokens_PersistsAndLoads(t *testing.T) {
	withConfigDir(t)

	m := New("https://api.example.com")
	if err := m.SetTokens("access-1", "refresh-1", 3600, "client-1"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	m2 := New("https://api.example.com")
	found, err := m2.LoadFromCredentials()
	if err != nil {
		t.Fatalf("LoadFromCredentials failed: %v", err)
	}
	if !found {
		t.Fatal("expected stored credentials to be found")
	}
	if m2.accessToken != "access-1" || m2.refreshToken != "refresh-1" {
		t.Errorf("loaded tokens mismatch: %q %q", m2.accessToken, m2.refreshToken)
	}
	if m2.IsExpired() {
		t.Error("freshly set 1-hour token should not be expired")
	}
}

func TestCacheClientCredentialsToken_DoesNotPersist(t *testing.T) {
	withConfigDir(t)

	m := New("https://api.example.com")
	m.CacheClientCredentialsToken("m2m-access", 3600, "client-m2m")

	if got := m.GetAccessToken(context.Background()); got != "m2m-access" {
		t.Errorf("expected cached token to be readable, got %q", got)
	}

	m2 := New("https://api.example.com")
	found, err := m2.LoadFromCredentials()
	if err != nil {
		t.Fatalf("LoadFromCredentials failed: %v", err)
	}
	if found {
		t.Error("M2M token must not be written to the credential store")
	}
}

func TestGetAccessToken_RefreshesWhenExpired(t *testing.T) {
	withConfigDir(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = r.ParseForm()
		if r.FormValue("grant_type") != "refresh_token" {
			t.Errorf("expected refresh_token grant, got %q", r.FormValue("grant_type"))
		}
		if r.FormValue("source") != "device" {
			t.Errorf("expected source=device, got %q", r.FormValue("source"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	m := New(server.URL)
	m.accessToken = "stale-access"
	m.refreshToken = "old-refresh"
	m.expiresAt = time.Now().Add(-1 * time.Hour).Unix()

	tok := m.GetAccessToken(context.Background())
	if tok != "fresh-access" {
		t.Errorf("expected refreshed token, got %q", tok)
	}
	if m.refreshToken != "fresh-refresh" {
		t.Errorf("expected rotated refresh token, got %q", m.refreshToken)
	}
}

func TestGetAccessToken_NoTokenReturnsEmpty(t *testing.T) {
	m := New("https://api.example.com")
	if tok := m.GetAccessToken(context.Background()); tok != "" {
		t.Errorf("expected empty string with no token, got %q", tok)
	}
}

func TestRefresh_FailsGracefullyOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	m := New(server.URL)
	m.refreshToken = "whatever"

	if m.Refresh(context.Background()) {
		t.Error("expected Refresh to return false on 401")
	}
}

func TestRefresh_DerivesExpiryFromClaimsWhenNoExpiresIn(t *testing.T) {
	withConfigDir(t)

	exp := time.Now().Add(2 * time.Hour).Unix()
	token := makeUnsignedJWT(t, map[string]any{"exp": exp})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": token})
	}))
	defer server.Close()

	m := New(server.URL)
	m.refreshToken = "r"
	if !m.Refresh(context.Background()) {
		t.Fatal("expected Refresh to succeed")
	}
	if m.expiresAt != exp {
		t.Errorf("expected expiresAt derived from exp claim %d, got %d", exp, m.expiresAt)
	}
}

func TestDecodeClaims_RoundTripsExpClaim(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	token := makeUnsignedJWT(t, map[string]any{"exp": exp, "sub": "user-123"})

	m := New("https://api.example.com")
	m.accessToken = token

	claims := m.DecodeClaims()
	got, ok := toFloat64(claims["exp"])
	if !ok {
		t.Fatal("expected exp claim to decode as a number")
	}
	if int64(got) != exp {
		t.Errorf("expected exp %d, got %v", exp, got)
	}
	if claims["sub"] != "user-123" {
		t.Errorf("expected sub claim round trip, got %v", claims["sub"])
	}
}

func TestDecodeClaims_EmptyOnNoToken(t *testing.T) {
	m := New("https://api.example.com")
	claims := m.DecodeClaims()
	if len(claims) != 0 {
		t.Errorf("expected empty claims map, got %v", claims)
	}
}

func TestDecodeClaims_EmptyOnMalformedToken(t *testing.T) {
	m := New("https://api.example.com")
	m.accessToken = "not-a-jwt"
	claims := m.DecodeClaims()
	if len(claims) != 0 {
		t.Errorf("expected empty claims map for malformed token, got %v", claims)
	}
}

// makeUnsignedJWT builds a syntactically valid, unsigned JWT (alg "none")
// carrying the given claims, sufficient for ParseUnverified to decode.
func makeUnsignedJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := map[string]any{"alg": "none", "typ": "JWT"}
	h, err := json.Marshal(header)
	if err != nil {
		t.Fatal(err)
	}
	c, err := json.Marshal(claims)
	if err != nil {
		t.Fatal(err)
	}
	enc := base64.RawURLEncoding
	return strings.Join([]string{enc.EncodeToString(h), enc.EncodeToString(c), ""}, ".")
}
