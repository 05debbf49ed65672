package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/apierrors"
	"github.com/fluidzero/fz-cli/internal/httpengine"
	"github.com/fluidzero/fz-cli/internal/output"
	"github.com/fluidzero/fz-cli/internal/runpoller"
	"github.com/fluidzero/fz-cli/internal/upload"
	"github.com/fluidzero/fz-cli/pkg/models"
)

func newRunCmd() *cobra.Command {
	var (
		uploadPaths        []string
		schemaDefinitionID string
		schemaVersionID    string
		promptDefinitionID string
		externalRunID      string
		wait               bool
	)

	cmd := &cobra.Command{
		Use:           "run",
		Short:         "Upload documents (optional) and start an extraction run",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `Start an extraction run, optionally uploading documents first.

Grounded on the source's run_cmd: any --upload paths are uploaded and
waited on until ready, their document ids become the run's input, and
with --wait the command polls to a terminal state and prints results.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunCmd(cmd, uploadPaths, schemaDefinitionID, schemaVersionID, promptDefinitionID, externalRunID, wait)
		},
	}

	cmd.Flags().StringArrayVar(&uploadPaths, "upload", nil, "file to upload before creating the run (repeatable)")
	cmd.Flags().StringVar(&schemaDefinitionID, "schema", "", "schema definition id (required)")
	cmd.Flags().StringVar(&schemaVersionID, "schema-version", "", "schema version id")
	cmd.Flags().StringVar(&promptDefinitionID, "prompt", "", "prompt definition id")
	cmd.Flags().StringVar(&externalRunID, "external-run-id", "", "caller-supplied idempotency id")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll the run to a terminal state and print results")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runRunCmd(cmd *cobra.Command, uploadPaths []string, schemaDefinitionID, schemaVersionID, promptDefinitionID, externalRunID string, wait bool) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Defaults.Project == "" {
		apierrors.Fail(apierrors.ExitGeneralError, "no project configured", "Pass --project or set defaults.project in config.toml.")
		return nil
	}

	api := httpengine.New(cfg.Defaults.APIURL, cfg.Defaults.Project)

	payload := models.RunPayload{
		SchemaDefinitionID: schemaDefinitionID,
		SchemaVersionID:    schemaVersionID,
		PromptDefinitionID: promptDefinitionID,
		ExternalRunID:      externalRunID,
	}

	if len(uploadPaths) > 0 {
		uploader := upload.New(api, cfg.Defaults.Project, upload.Options{
			Concurrency:   cfg.Upload.Concurrency,
			RetryAttempts: cfg.Upload.RetryAttempts,
			WaitReady:     true,
		})
		results := uploader.UploadFiles(ctx, uploadPaths)

		docIDs := make([]string, 0, len(results))
		for _, r := range results {
			if r.Err != nil {
				return r.Err
			}
			docIDs = append(docIDs, r.Document.ID)
		}
		payload.InputParameters = map[string]any{"documentIds": docIDs}
	}

	poller := runpoller.New(api, cfg.Defaults.Project, cfg.Runs.PollInterval, cfg.Runs.Timeout, quietFlag)

	run, err := poller.Create(ctx, payload)
	if err != nil {
		return failRunErr(err)
	}
	fmt.Printf("Run %s created (status: %s)\n", run.ID, run.Status)

	if !wait {
		return nil
	}

	finalRun, err := poller.Wait(ctx, run.ID)
	if err != nil && err != runpoller.ErrInterrupted {
		return failRunErr(err)
	}
	if err == runpoller.ErrInterrupted {
		fmt.Println("Wait interrupted; the run continues on the server.")
		return nil
	}

	items, err := poller.CollectResults(ctx, finalRun.ID)
	if err != nil {
		return failRunErr(err)
	}

	return output.Write(os.Stdout, output.Format(outputFormat(cfg)), items)
}

// failRunErr centralizes the Error Taxonomy's exit behavior for run
// commands: an *apierrors.APIError already carries its exit code, any
// other error falls back to a general failure.
func failRunErr(err error) error {
	if apiErr, ok := err.(*apierrors.APIError); ok {
		apierrors.ExitAPIError(apiErr)
		return nil
	}
	return err
}
