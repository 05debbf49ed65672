// Package httpengine implements the HTTP Engine (spec.md §4.4): the single
// place every API call flows through. It resolves authentication lazily
// (M2M env vars first, then stored device-flow credentials), attaches
// headers, retries transient failures with the shared backoff policy,
// replays a request exactly once after a 401 if recovery looks possible,
// and otherwise turns a failed response into the apierrors taxonomy.
//
// Grounded on the teacher's internal/api client for the request-builder
// shape (method/path/body/params surface, *http.Client reuse) and on
// original_source/src/fz_cli/client.py's FZClient for the auth-resolution
// and retry-auth control flow, with the retry loop spec.md §4.4 requires
// added on top.
package httpengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/fluidzero/fz-cli/internal/apierrors"
	"github.com/fluidzero/fz-cli/internal/authflow"
	"github.com/fluidzero/fz-cli/internal/config"
	"github.com/fluidzero/fz-cli/internal/retry"
	"github.com/fluidzero/fz-cli/internal/telemetry"
	"github.com/fluidzero/fz-cli/internal/tokenmgr"
)

// Engine is the stateful client every command builds once per invocation.
type Engine struct {
	APIURL  string
	Project string

	client *retryablehttp.Client
	tokens *tokenmgr.Manager

	m2mClientID, m2mSecret string
	useM2M                 bool
}

// New builds an Engine bound to apiURL, loading any stored device-flow
// credentials and detecting M2M env vars. A missing credential store and
// absent M2M vars are not errors here — auth is resolved lazily on first
// request, per spec.md §4.4 step 1, so `fz auth login` itself can use an
// Engine before any credentials exist.
func New(apiURL, project string) *Engine {
	e := &Engine{
		APIURL:  strings.TrimRight(apiURL, "/"),
		Project: project,
		client:  retry.NewHTTPClient(),
		tokens:  tokenmgr.New(apiURL),
	}
	if clientID, secret, ok := config.M2MCredentialsFromEnv(); ok {
		e.m2mClientID, e.m2mSecret, e.useM2M = clientID, secret, true
	} else {
		_, _ = e.tokens.LoadFromCredentials()
	}
	return e
}

// Get issues a GET request with query parameters and decodes the JSON
// response body into out (nil to discard the body).
func (e *Engine) Get(ctx context.Context, path string, params url.Values, out any) error {
	return e.do(ctx, http.MethodGet, path, params, nil, out)
}

// Post issues a POST with a JSON body.
func (e *Engine) Post(ctx context.Context, path string, body any, out any) error {
	return e.do(ctx, http.MethodPost, path, nil, body, out)
}

// Put issues a PUT with a JSON body.
func (e *Engine) Put(ctx context.Context, path string, body any, out any) error {
	return e.do(ctx, http.MethodPut, path, nil, body, out)
}

// Delete issues a DELETE request.
func (e *Engine) Delete(ctx context.Context, path string, out any) error {
	return e.do(ctx, http.MethodDelete, path, nil, nil, out)
}

func (e *Engine) do(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	resp, bodyBytes, err := e.request(ctx, method, path, params, body, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apierrors.FromResponse(resp, bodyBytes)
	}
	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// request performs one logical call, including the transient-status retry
// loop (handled inside the retryablehttp client) and — unless retried is
// already true — a single 401 recovery replay: re-resolve auth, and if a
// fresh token was obtained, repeat the call exactly once.
func (e *Engine) request(ctx context.Context, method, path string, params url.Values, body any, retried bool) (*http.Response, []byte, error) {
	reqURL := e.APIURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	token, authErr := e.resolveToken(ctx)
	if authErr != nil {
		return nil, nil, authErr
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if e.Project != "" {
		req.Header.Set("X-Project-ID", e.Project)
	}

	retryableReq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, nil, err
	}

	telemetry.Log("request: %s %s", method, reqURL)
	resp, err := e.client.Do(retryableReq)
	if err != nil {
		return nil, nil, &apierrors.NetworkError{Err: err}
	}
	telemetry.LogHTTP(method, reqURL, resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized && !retried && !apierrors.IsRevoked(resp) {
		resp.Body.Close()
		if e.tryRecoverAuth(ctx) {
			return e.request(ctx, method, path, params, body, true)
		}
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	return resp, bodyBytes, nil
}

// resolveToken returns a valid bearer token for the request, drawn from
// the Token Manager. In M2M mode the manager holds the last exchanged
// client-credentials token and is consulted first — spec.md §4.4 step 1
// resolves auth lazily once per engine lifetime, not on every request; a
// fresh exchange only happens when the manager has nothing usable (no
// token yet, or expired with no refresh token, which client-credentials
// grants never carry). Returns an auth-taxonomy error when no
// credentials are configured at all.
func (e *Engine) resolveToken(ctx context.Context) (string, error) {
	if e.useM2M {
		if tok := e.tokens.GetAccessToken(ctx); tok != "" {
			return tok, nil
		}
		return e.exchangeAndStoreM2M(ctx)
	}

	if !e.tokens.HasAccessToken() {
		return "", &apierrors.APIError{
			ExitCode: apierrors.ExitAuthFailure,
			Message:  "Not authenticated",
			Hint:     "Run `fz auth login` to authenticate.",
		}
	}
	return e.tokens.GetAccessToken(ctx), nil
}

// exchangeAndStoreM2M performs the client-credentials grant and caches the
// result on the Token Manager so subsequent requests serve from it instead
// of re-exchanging. The cache is in-memory only: persisting it would mean
// writing over a device-flow login's credentials.json with a token that
// has no refresh token of its own.
func (e *Engine) exchangeAndStoreM2M(ctx context.Context) (string, error) {
	tok, err := authflow.ExchangeClientCredentials(ctx, e.APIURL, e.m2mClientID, e.m2mSecret)
	if err != nil {
		return "", &apierrors.NetworkError{Err: err}
	}
	e.tokens.CacheClientCredentialsToken(tok.AccessToken, tok.ExpiresIn, e.m2mClientID)
	return tok.AccessToken, nil
}

// tryRecoverAuth attempts to obtain a fresh token after a 401: for M2M,
// force a new exchange (the cached token may have been revoked); for
// device-flow credentials, force a refresh.
func (e *Engine) tryRecoverAuth(ctx context.Context) bool {
	if e.useM2M {
		_, err := e.exchangeAndStoreM2M(ctx)
		return err == nil
	}
	return e.tokens.Refresh(ctx)
}
