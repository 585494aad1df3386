package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/scene.cheap/internal/cli/config"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `View and manage sc CLI configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Available keys:
  base_url    API base URL
  api_token   Bearer token sent with every request
  batch_size  Default scenes per provider call (1-50)
  timeout     Timeout for non-streaming requests, e.g. 30s

Examples:
  sc config set base_url https://api.scene.cheap
  sc config set batch_size 10
  sc config set timeout 2m`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if jsonOutput {
		return printer.JSON(map[string]any{
			"base_url":      cfg.BaseURL,
			"authenticated": cfg.HasToken(),
			"batch_size":    cfg.BatchSize,
			"timeout":       cfg.RequestTimeout().String(),
		})
	}

	printer.Section("Configuration")
	printer.KeyValue("Base URL", cfg.BaseURL)
	printer.KeyValue("Authenticated", fmt.Sprintf("%v", cfg.HasToken()))
	printer.KeyValue("Batch size", strconv.Itoa(cfg.BatchSize))
	printer.KeyValue("Timeout", cfg.RequestTimeout().String())
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	switch key {
	case "base_url":
		cfg.BaseURL = value
	case "api_token":
		cfg.APIToken = value
	case "batch_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid batch_size value: %s", value)
		}
		if n < 1 || n > model.MaxBatchSize {
			return fmt.Errorf("batch_size must be between 1 and %d", model.MaxBatchSize)
		}
		cfg.BatchSize = n
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid timeout value: %s", value)
		}
		cfg.Timeout = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if key == "api_token" {
		value = "********"
	}
	printer.Success("Set %s = %s", key, value)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := config.Path()
	if err != nil {
		return err
	}

	if jsonOutput {
		return printer.JSON(map[string]string{"path": path})
	}

	printer.Println(path)
	return nil
}
