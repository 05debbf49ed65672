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

func newBatchCmd() *cobra.Command {
	var (
		dir                string
		schemaDefinitionID string
		batchSize          int
		jsonlPath          string
	)

	cmd := &cobra.Command{
		Use:           "batch",
		Short:         "Run extraction over every supported file in a directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `Walk --dir, group files into batches, and for each batch
upload, create a run, wait for it, and collect results — grounded on the
source's batch_cmd directory driver.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatchCmd(cmd, dir, schemaDefinitionID, batchSize, jsonlPath)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory to scan for supported files (required)")
	cmd.Flags().StringVar(&schemaDefinitionID, "schema", "", "schema definition id (required)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 10, "number of documents per run")
	cmd.Flags().StringVar(&jsonlPath, "jsonl", "", "stream results to this file instead of accumulating them")
	_ = cmd.MarkFlagRequired("dir")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runBatchCmd(cmd *cobra.Command, dir, schemaDefinitionID string, batchSize int, jsonlPath string) error {
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
	uploader := upload.New(api, cfg.Defaults.Project, upload.Options{
		Concurrency:   cfg.Upload.Concurrency,
		RetryAttempts: cfg.Upload.RetryAttempts,
		WaitReady:     true,
	})
	poller := runpoller.New(api, cfg.Defaults.Project, cfg.Runs.PollInterval, cfg.Runs.Timeout, quietFlag)

	payload := models.RunPayload{SchemaDefinitionID: schemaDefinitionID}

	results, err := poller.RunBatch(ctx, uploader, dir, batchSize, payload, jsonlPath)
	if err != nil && err != runpoller.ErrInterrupted {
		for _, r := range results {
			fmt.Fprintf(os.Stderr, "batch %v: %v\n", r.Files, r.Err)
		}
		return failRunErr(err)
	}

	summary := make([]map[string]any, 0, len(results))
	for _, r := range results {
		row := map[string]any{"files": len(r.Files)}
		if r.Run != nil {
			row["runId"] = r.Run.ID
			row["status"] = r.Run.Status
			row["results"] = len(r.Results)
		}
		if r.Err != nil {
			row["error"] = r.Err.Error()
		}
		summary = append(summary, row)
	}

	if jsonlPath != "" {
		fmt.Printf("Results streamed to %s\n", jsonlPath)
	}
	if err := output.Write(os.Stdout, output.Format(outputFormat(cfg)), summary); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if err == runpoller.ErrInterrupted {
		fmt.Println("Batch interrupted; already-started runs continue on the server.")
	}
	return nil
}
