package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/keepmind9/groupmebot/internal/core"
	"github.com/spf13/cobra"
)

var (
	validateConfigFile string
	validateEnvFile    string
	validateShow       bool
	validateJSON       bool
)

// ValidationResult represents the validation result
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Config   string   `json:"config"`
	Bots     int      `json:"bots"`
	Handlers int      `json:"handlers"`
	Jobs     int      `json:"jobs"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate groupmebot configuration file",
	Long: `Validate the groupmebot configuration file without starting the server.

This command checks:
  - YAML syntax and environment variables (including the .env file)
  - Bot names, callback paths and credentials
  - Handler patterns and actions
  - Job schedules and time zones

Exit codes:
  0 - Configuration is valid
  1 - Configuration has errors`,
	Run: func(cmd *cobra.Command, args []string) {
		configFile := validateConfigFile
		if configFile == "" {
			configFile = findConfigFile()
		}

		if configFile == "" {
			fmt.Println("❌ No configuration file found")
			fmt.Println("\nSpecify a config file with --config or ensure one exists at:")
			for _, loc := range defaultConfigLocations() {
				fmt.Printf("  - %s\n", loc)
			}
			os.Exit(1)
		}

		if !runValidate(cmd.OutOrStdout(), configFile, validateEnvFile, validateShow, validateJSON) {
			os.Exit(1)
		}
	},
}

func defaultConfigLocations() []string {
	return []string{
		"config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/groupmebot/config.yaml"),
		"/etc/groupmebot/config.yaml",
	}
}

func findConfigFile() string {
	for _, loc := range defaultConfigLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// runValidate loads envFile and configFile the way serve does, prints the
// result and reports whether it is valid
func runValidate(w io.Writer, configFile, envFile string, show, jsonFormat bool) bool {
	cfg, err := loadValidateConfig(configFile, envFile)
	if err != nil {
		outputValidationResult(w, ValidationResult{
			Valid:  false,
			Config: configFile,
			Errors: []string{err.Error()},
		}, jsonFormat)
		return false
	}

	result := ValidationResult{
		Valid:    true,
		Config:   configFile,
		Bots:     len(cfg.Bots),
		Warnings: validateConfigDetails(cfg),
	}
	for _, b := range cfg.Bots {
		result.Handlers += len(b.Handlers)
		result.Jobs += len(b.Jobs)
	}

	if show && !jsonFormat {
		showConfig(w, configFile, cfg)
	}

	outputValidationResult(w, result, jsonFormat)
	return result.Valid
}

func loadValidateConfig(configFile, envFile string) (*core.Config, error) {
	if err := core.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	return core.LoadConfig(configFile)
}

func showConfig(w io.Writer, configFile string, cfg *core.Config) {
	fmt.Fprintf(w, "✓ Configuration loaded: %s\n\n", configFile)
	fmt.Fprintf(w, "Server: %s\n", cfg.Address())
	fmt.Fprintf(w, "Platform: %s\n", cfg.Platform.APIURL)
	fmt.Fprintf(w, "\nBots (%d):\n", len(cfg.Bots))
	for _, b := range cfg.Bots {
		fmt.Fprintf(w, "  - %s @ %s (guard: %s)\n", b.Name, b.Path, b.Guard)
		for _, h := range b.Handlers {
			fmt.Fprintf(w, "      %s -> %s\n", h.Pattern, h.Action)
		}
		for _, j := range b.Jobs {
			trigger := "invalid schedule"
			if c, err := j.Schedule.Cron(); err == nil {
				trigger = c.String()
			}
			fmt.Fprintf(w, "      job %s: %s -> %s\n", j.Name, trigger, j.Action)
		}
	}
	fmt.Fprintln(w)
}

func outputValidationResult(w io.Writer, result ValidationResult, jsonFormat bool) {
	if jsonFormat {
		output, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(w, "{\"error\": \"failed to marshal json: %v\"}\n", err)
			return
		}
		fmt.Fprintln(w, string(output))
		return
	}

	if result.Valid {
		fmt.Fprintln(w, "✓ Configuration is valid")
		fmt.Fprintf(w, "  - Config: %s\n", result.Config)
		fmt.Fprintf(w, "  - Bots: %d\n", result.Bots)
		fmt.Fprintf(w, "  - Handlers: %d\n", result.Handlers)
		fmt.Fprintf(w, "  - Jobs: %d\n", result.Jobs)
		if len(result.Warnings) > 0 {
			fmt.Fprintln(w, "\n⚠️  Warnings:")
			for _, warning := range result.Warnings {
				fmt.Fprintf(w, "  - %s\n", warning)
			}
		}
		return
	}

	fmt.Fprintln(w, "❌ Configuration validation failed:")
	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, errMsg := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", errMsg)
		}
	}
}

// validateConfigDetails reports setups that load fine but probably are not intended
func validateConfigDetails(cfg *core.Config) []string {
	var warnings []string

	for _, b := range cfg.Bots {
		if len(b.Handlers) == 0 && len(b.Jobs) == 0 {
			warnings = append(warnings, fmt.Sprintf("Bot '%s' has no handlers or jobs", b.Name))
		}
		if b.Guard != core.GuardNotSelf {
			continue
		}
		for _, h := range b.Handlers {
			if h.Action == core.ActionEcho {
				warnings = append(warnings, fmt.Sprintf(
					"Bot '%s' echoes with guard %s; two such bots in one group will answer each other forever",
					b.Name, core.GuardNotSelf))
				break
			}
		}
	}

	return warnings
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "config", "c", "", "Configuration file path")
	validateCmd.Flags().StringVar(&validateEnvFile, "env-file", "", "Load environment variables from this file (default: ./.env when present)")
	validateCmd.Flags().BoolVar(&validateShow, "show", false, "Show full configuration details")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output in JSON format")
}
