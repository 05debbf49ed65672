// Package main implements fz, the fluidzero command-line client:
// device/M2M authentication, multipart document upload, and extraction
// run orchestration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/config"
	"github.com/fluidzero/fz-cli/internal/telemetry"
)

var (
	version = "dev"

	cfgFile    string
	debugMode  bool
	apiURLFlag string
	projectFlag string
	outputFlag string
	quietFlag  bool
	verboseFlag bool
	noColorFlag bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "fz",
		Short:   "fluidzero document extraction CLI",
		Version: version,
		Long: `fz uploads documents to fluidzero, runs extraction jobs against them,
and collects results — built for scripting and CI use.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: <config dir>/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "enable verbose request tracing")
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "override the configured API base URL")
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "project id")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "", "output format: table, json, jsonl, csv")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "alias for --debug")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if debugMode || verboseFlag {
			telemetry.Enable()
		}
		if noColorFlag {
			os.Setenv("NO_COLOR", "1")
		}
		return nil
	}

	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		telemetry.Sync()
		os.Exit(1)
	}
	telemetry.Sync()
}

// loadConfig resolves layered configuration then applies this
// invocation's flag overrides, the most specific layer per spec.md §6.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadWithFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if apiURLFlag != "" {
		cfg.Defaults.APIURL = apiURLFlag
	}
	if projectFlag != "" {
		cfg.Defaults.Project = projectFlag
	}
	if outputFlag != "" {
		cfg.Defaults.Output = outputFlag
	}
	return cfg, nil
}

func outputFormat(cfg *config.Config) string {
	if cfg.Defaults.Output == "" {
		return "table"
	}
	return cfg.Defaults.Output
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage fz configuration",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Print a sample config.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.PrintSample()
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("api_url: %s\n", cfg.Defaults.APIURL)
			fmt.Printf("project: %s\n", cfg.Defaults.Project)
			fmt.Printf("output: %s\n", outputFormat(cfg))
			fmt.Printf("upload.concurrency: %d\n", cfg.Upload.Concurrency)
			fmt.Printf("runs.timeout: %d\n", cfg.Runs.Timeout)
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
