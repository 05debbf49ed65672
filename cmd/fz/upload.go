package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/apierrors"
	"github.com/fluidzero/fz-cli/internal/httpengine"
	"github.com/fluidzero/fz-cli/internal/output"
	"github.com/fluidzero/fz-cli/internal/upload"
)

func newUploadCmd() *cobra.Command {
	var resume, wait bool

	cmd := &cobra.Command{
		Use:           "upload FILE...",
		Short:         "Upload one or more documents",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, args, resume, wait)
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "attempt to resume an in-progress multipart upload")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until each document finishes processing")
	return cmd
}

func runUpload(cmd *cobra.Command, paths []string, resume, wait bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Defaults.Project == "" {
		apierrors.Fail(apierrors.ExitGeneralError, "no project configured", "Pass --project or set defaults.project in config.toml.")
		return nil
	}

	api := httpengine.New(cfg.Defaults.APIURL, cfg.Defaults.Project)
	uploader := upload.New(api, cfg.Defaults.Project, upload.Options{
		Concurrency:   cfg.Upload.Concurrency,
		RetryAttempts: cfg.Upload.RetryAttempts,
		Resume:        resume,
		WaitReady:     wait,
	})

	results := uploader.UploadFiles(cmd.Context(), paths)

	rows := make([]map[string]any, 0, len(results))
	var firstErr error
	for _, r := range results {
		row := map[string]any{"path": r.Path}
		if r.Document != nil {
			row["documentId"] = r.Document.ID
			row["status"] = r.Document.Status
		}
		if r.Err != nil {
			row["error"] = r.Err.Error()
			if firstErr == nil {
				firstErr = r.Err
			}
		}
		rows = append(rows, row)
	}

	if err := output.Write(os.Stdout, output.Format(outputFormat(cfg)), rows); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if firstErr != nil {
		if apiErr, ok := firstErr.(*apierrors.APIError); ok {
			apierrors.ExitAPIError(apiErr)
			return nil
		}
		return firstErr
	}
	return nil
}
