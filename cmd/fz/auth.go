package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/apierrors"
	"github.com/fluidzero/fz-cli/internal/authflow"
	"github.com/fluidzero/fz-cli/internal/credstore"
	"github.com/fluidzero/fz-cli/internal/tokenmgr"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with fluidzero",
	}
	cmd.AddCommand(newAuthLoginCmd(), newAuthLogoutCmd(), newAuthStatusCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "login",
		Short:         "Log in via the device authorization flow",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `Authenticate with fluidzero using the OAuth device authorization grant.

This will:
1. Request a device code
2. Open your browser to confirm it (or print the URL)
3. Poll until you confirm, then store the resulting tokens`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd.Context())
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Remove stored credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout()
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the current authentication state",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus()
		},
	}
}

func runAuthLogin(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("Requesting a device code...")
	dc, err := authflow.RequestDeviceCode(ctx, cfg.OAuthClientID)
	if err != nil {
		apierrors.Fail(apierrors.ExitNetworkError, err.Error(), "Check your network connection and try again.")
		return nil
	}

	authflow.OpenBrowser(dc)

	tok, err := authflow.PollForToken(ctx, cfg.OAuthClientID, dc)
	if err != nil {
		apierrors.Fail(apierrors.ExitAuthFailure, err.Error(), "Run `fz auth login` to try again.")
		return nil
	}

	mgr := tokenmgr.New(cfg.Defaults.APIURL)
	if err := mgr.SetTokens(tok.AccessToken, tok.RefreshToken, tok.ExpiresIn, cfg.OAuthClientID); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	fmt.Println("Logged in.")
	return nil
}

func runAuthLogout() error {
	existed, err := credstore.Delete()
	if err != nil {
		return fmt.Errorf("removing credentials: %w", err)
	}
	if existed {
		fmt.Println("Logged out.")
	} else {
		fmt.Println("Not logged in.")
	}
	return nil
}

func runAuthStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr := tokenmgr.New(cfg.Defaults.APIURL)
	found, err := mgr.LoadFromCredentials()
	if err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}
	if !found || !mgr.HasAccessToken() {
		fmt.Println("Not logged in.")
		return nil
	}

	if mgr.IsExpired() {
		fmt.Println("Logged in (access token expired; will refresh on next request).")
	} else {
		fmt.Println("Logged in.")
	}

	claims := mgr.DecodeClaims()
	if sub, ok := claims["sub"].(string); ok {
		fmt.Printf("Subject: %s\n", sub)
	}
	if exp, ok := claims["exp"]; ok {
		if expFloat, ok := exp.(float64); ok {
			fmt.Printf("Token expires: %s\n", time.Unix(int64(expFloat), 0).Format(time.RFC3339))
		}
	}
	return nil
}
