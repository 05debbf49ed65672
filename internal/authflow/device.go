// Package authflow implements the Auth Flows component (spec.md §4.3):
// the OAuth 2.0 Device Authorization Grant for human login, and the
// machine-to-machine client-credentials exchange.
//
// Grounded on the teacher's cmd/intentra/auth.go device-flow control
// flow (requestDeviceCode/pollForToken/openBrowser) and on
// original_source/src/fz_cli/auth/{browser.py,m2m.py} for exact wire
// semantics. Browser launching uses github.com/pkg/browser instead of
// the teacher's hand-rolled per-platform exec.Command table. Both flows
// now retry transient statuses via the shared internal/retry policy,
// which neither the teacher nor the single surviving original_source
// snapshot implements but which spec.md §4.3 requires — see DESIGN.md's
// note on the two historical module versions.
package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/browser"

	"github.com/fluidzero/fz-cli/internal/retry"
	"github.com/fluidzero/fz-cli/internal/telemetry"
	"github.com/fluidzero/fz-cli/pkg/models"
)

// WorkOS User Management endpoints used for first-party CLI device auth.
// Declared as vars rather than consts so tests can point them at an
// httptest server.
var (
	deviceAuthURL  = "https://api.workos.com/user_management/authorize/device"
	deviceTokenURL = "https://api.workos.com/user_management/authenticate"
)

// ErrTimeout is returned when the device flow's overall deadline elapses
// without a successful poll.
type ErrTimeout struct {
	ExpiresIn int
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("authentication timed out after %ds; try again with `fz auth login`", e.ExpiresIn)
}

// ErrDeviceFlow reports a fatal, non-retryable device-flow failure
// (access_denied, expired_token, an unrecognized hard error, or an
// unexpected 200 payload).
type ErrDeviceFlow struct {
	Message string
}

func (e *ErrDeviceFlow) Error() string { return e.Message }

// RequestDeviceCode performs step 1-2 of spec.md §4.3: POST the OAuth
// client id to the device-authorization endpoint, retrying transient
// statuses, and return the parsed device/user code response.
func RequestDeviceCode(ctx context.Context, oauthClientID string) (*models.DeviceCodeResponse, error) {
	form := url.Values{"client_id": {oauthClientID}}

	resp, body, err := postForm(ctx, deviceAuthURL, form)
	if err != nil {
		return nil, fmt.Errorf("device authorization failed: network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device authorization failed: %s", describeError(body, resp.StatusCode))
	}

	var out models.DeviceCodeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("device authorization failed: malformed response: %w", err)
	}
	if out.ExpiresIn == 0 {
		out.ExpiresIn = 300
	}
	if out.Interval == 0 {
		out.Interval = 5
	}
	return &out, nil
}

// OpenBrowser shows the user code on stderr and attempts to open the
// verification URL, printing it as a fallback either way.
func OpenBrowser(dc *models.DeviceCodeResponse) {
	fmt.Fprintf(os.Stderr, "\nYour confirmation code: %s\n\n", dc.UserCode)
	openURL := dc.VerificationURL()
	if openURL == "" {
		fmt.Fprintln(os.Stderr, "Visit the URL shown above and enter the code.")
		return
	}
	fmt.Fprintln(os.Stderr, "Opening browser to confirm...")
	fmt.Fprintf(os.Stderr, "If the browser doesn't open, visit:\n  %s\n\n", openURL)
	if err := browser.OpenURL(openURL); err != nil {
		telemetry.Log("failed to open browser: %v", err)
	}
}

// PollForToken implements step 4-5 of spec.md §4.3: poll the token
// endpoint every dc.Interval seconds, classifying each response, until
// success, a fatal error, or the overall deadline (now + ExpiresIn).
func PollForToken(ctx context.Context, oauthClientID string, dc *models.DeviceCodeResponse) (*models.TokenResponse, error) {
	interval := time.Duration(dc.Interval) * time.Second
	deadline := time.Now().Add(time.Duration(dc.ExpiresIn) * time.Second)

	fmt.Fprintln(os.Stderr, "Waiting for confirmation...")

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		if time.Now().After(deadline) {
			return nil, &ErrTimeout{ExpiresIn: dc.ExpiresIn}
		}

		form := url.Values{
			"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
			"device_code": {dc.DeviceCode},
			"client_id":   {oauthClientID},
		}

		resp, body, err := postFormOnce(ctx, deviceTokenURL, form)
		if err != nil {
			// Network errors during polling are absorbed; try again next tick.
			telemetry.Log("device poll: network error: %v", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var tok models.TokenResponse
			if jsonErr := json.Unmarshal(body, &tok); jsonErr != nil || tok.AccessToken == "" {
				return nil, &ErrDeviceFlow{Message: "unexpected token response format; please report this issue"}
			}
			return &tok, nil
		}

		var errBody models.DeviceErrorResponse
		_ = json.Unmarshal(body, &errBody)

		switch errBody.Error {
		case "authorization_pending":
			continue
		case "slow_down":
			interval += 5 * time.Second
			continue
		case "access_denied", "expired_token":
			desc := errBody.ErrorDescription
			if desc == "" {
				desc = errBody.Error
			}
			return nil, &ErrDeviceFlow{Message: fmt.Sprintf("authentication failed: %s", desc)}
		default:
			if resp.StatusCode >= 400 && resp.StatusCode != 428 {
				desc := errBody.ErrorDescription
				if desc == "" {
					desc = string(body)
				}
				return nil, &ErrDeviceFlow{Message: fmt.Sprintf("authentication failed: %s", desc)}
			}
			continue
		}
	}
}

func describeError(body []byte, status int) string {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		if msg, ok := parsed["message"].(string); ok && msg != "" {
			return msg
		}
		if errStr, ok := parsed["error"].(string); ok && errStr != "" {
			return errStr
		}
	}
	if len(body) > 0 {
		return string(body)
	}
	return fmt.Sprintf("HTTP %d", status)
}

// postForm performs a retried POST through the shared retry policy,
// returning the response (caller closes the body) and the buffered body
// bytes.
func postForm(ctx context.Context, rawURL string, form url.Values) (*http.Response, []byte, error) {
	client := retry.NewHTTPClient()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	retryableReq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, nil, err
	}
	resp, err := client.Do(retryableReq)
	if err != nil {
		return nil, nil, err
	}
	body, _ := io.ReadAll(resp.Body)
	return resp, body, nil
}

// postFormOnce performs a single, non-retried POST — device-token polling
// has its own tick-based retry loop driven by RFC 8628 response
// classification, not the transient-status retry policy.
func postFormOnce(ctx context.Context, rawURL string, form url.Values) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpClient := &http.Client{Timeout: 30 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body, nil
}
