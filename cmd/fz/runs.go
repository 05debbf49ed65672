package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/apierrors"
	"github.com/fluidzero/fz-cli/internal/httpengine"
	"github.com/fluidzero/fz-cli/internal/output"
	"github.com/fluidzero/fz-cli/internal/runpoller"
	"github.com/fluidzero/fz-cli/pkg/models"
)

// newRunsCmd exposes the Run Poller's three primitive operations
// directly, for scripts that want to drive create/wait/results
// separately rather than through the composite `fz run`.
func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Create, wait on, and collect results from extraction runs",
	}
	cmd.AddCommand(newRunsCreateCmd(), newRunsWaitCmd(), newRunsResultsCmd())
	return cmd
}

func newRunsCreateCmd() *cobra.Command {
	var (
		schemaDefinitionID string
		schemaVersionID    string
		promptDefinitionID string
		documentIDs        []string
		externalRunID      string
	)

	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Create a run",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Defaults.Project == "" {
				apierrors.Fail(apierrors.ExitGeneralError, "no project configured", "Pass --project or set defaults.project in config.toml.")
				return nil
			}

			api := httpengine.New(cfg.Defaults.APIURL, cfg.Defaults.Project)
			poller := runpoller.New(api, cfg.Defaults.Project, cfg.Runs.PollInterval, cfg.Runs.Timeout, quietFlag)

			payload := models.RunPayload{
				SchemaDefinitionID: schemaDefinitionID,
				SchemaVersionID:    schemaVersionID,
				PromptDefinitionID: promptDefinitionID,
				ExternalRunID:      externalRunID,
			}
			if len(documentIDs) > 0 {
				payload.InputParameters = map[string]any{"documentIds": documentIDs}
			}

			run, err := poller.Create(cmd.Context(), payload)
			if err != nil {
				return failRunErr(err)
			}
			return output.Write(os.Stdout, output.Format(outputFormat(cfg)), map[string]any{
				"id": run.ID, "status": run.Status,
			})
		},
	}

	cmd.Flags().StringVar(&schemaDefinitionID, "schema", "", "schema definition id (required)")
	cmd.Flags().StringVar(&schemaVersionID, "schema-version", "", "schema version id")
	cmd.Flags().StringVar(&promptDefinitionID, "prompt", "", "prompt definition id")
	cmd.Flags().StringArrayVar(&documentIDs, "document", nil, "document id to include as input (repeatable)")
	cmd.Flags().StringVar(&externalRunID, "external-run-id", "", "caller-supplied idempotency id")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func newRunsWaitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wait RUN_ID",
		Short:         "Poll a run until it reaches a terminal state",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Defaults.Project == "" {
				apierrors.Fail(apierrors.ExitGeneralError, "no project configured", "Pass --project or set defaults.project in config.toml.")
				return nil
			}

			api := httpengine.New(cfg.Defaults.APIURL, cfg.Defaults.Project)
			poller := runpoller.New(api, cfg.Defaults.Project, cfg.Runs.PollInterval, cfg.Runs.Timeout, quietFlag)

			run, err := poller.Wait(cmd.Context(), args[0])
			if err != nil {
				if err == runpoller.ErrInterrupted {
					fmt.Println("Wait interrupted; the run continues on the server.")
					return nil
				}
				return failRunErr(err)
			}
			return output.Write(os.Stdout, output.Format(outputFormat(cfg)), map[string]any{
				"id": run.ID, "status": run.Status, "resultCount": run.ResultCount,
			})
		},
	}
	return cmd
}

func newRunsResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "results RUN_ID",
		Short:         "Collect a completed run's paginated results",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Defaults.Project == "" {
				apierrors.Fail(apierrors.ExitGeneralError, "no project configured", "Pass --project or set defaults.project in config.toml.")
				return nil
			}

			api := httpengine.New(cfg.Defaults.APIURL, cfg.Defaults.Project)
			poller := runpoller.New(api, cfg.Defaults.Project, cfg.Runs.PollInterval, cfg.Runs.Timeout, quietFlag)

			items, err := poller.CollectResults(cmd.Context(), args[0])
			if err != nil {
				return failRunErr(err)
			}
			return output.Write(os.Stdout, output.Format(outputFormat(cfg)), items)
		},
	}
	return cmd
}
