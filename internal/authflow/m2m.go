package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fluidzero/fz-cli/internal/retry"
	"github.com/fluidzero/fz-cli/pkg/models"
)

// ExchangeClientCredentials performs the machine-to-machine grant
// (spec.md §4.3/§6): POST {apiURL}/oauth/token with grant_type=
// client_credentials, retrying transient statuses. Used by the HTTP
// Engine when FZ_CLIENT_ID/FZ_CLIENT_SECRET are set instead of stored
// device-flow credentials.
func ExchangeClientCredentials(ctx context.Context, apiURL, clientID, clientSecret string) (*models.TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	client := retry.NewHTTPClient()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(apiURL, "/")+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	retryableReq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(retryableReq)
	if err != nil {
		return nil, fmt.Errorf("client credentials exchange failed: network error: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client credentials exchange failed: %s", describeError(body, resp.StatusCode))
	}

	var tok models.TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("client credentials exchange failed: malformed response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("client credentials exchange failed: response missing access_token")
	}
	return &tok, nil
}
