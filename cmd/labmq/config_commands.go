package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"labmq/internal/config"
	"labmq/internal/preflight"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigValidateCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveInitPath(targetPath)
			if err != nil {
				return err
			}

			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("config file %s already exists (pass --overwrite to replace it)", target)
			} else if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("check config path: %w", err)
			}

			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("write sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sample configuration written to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set broker.url if RabbitMQ is not on localhost.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func resolveInitPath(flagValue string) (string, error) {
	target := strings.TrimSpace(flagValue)
	if target == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return path, nil
	}
	expanded, err := config.ExpandPath(target)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return expanded, nil
}

type configView struct {
	Path         string          `json:"path"`
	FileExists   bool            `json:"file_exists"`
	BrokerURL    string          `json:"broker_url"`
	DataDir      string          `json:"data_dir"`
	LogDir       string          `json:"log_dir"`
	CallTimeout  string          `json:"call_timeout"`
	GrantWait    string          `json:"grant_wait"`
	AuditEnabled bool            `json:"audit_enabled"`
	AuditDB      string          `json:"audit_db,omitempty"`
	Subsystems   map[string]bool `json:"subsystems"`
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			view := configView{
				Path:         ctx.configPath,
				FileExists:   ctx.configFound,
				BrokerURL:    cfg.Broker.URL,
				DataDir:      cfg.Paths.DataDir,
				LogDir:       cfg.Paths.LogDir,
				CallTimeout:  cfg.CallTimeout().String(),
				GrantWait:    cfg.GrantWait().String(),
				AuditEnabled: cfg.Audit.Enabled,
				Subsystems: map[string]bool{
					"motion":    cfg.Motion.Enabled,
					"digitizer": cfg.Digitizer.Enabled,
					"gpio":      cfg.GPIO.Enabled,
				},
			}
			if cfg.Audit.Enabled {
				view.AuditDB = cfg.AuditDBPath()
			}
			if jsonOut {
				return writeJSON(cmd, view)
			}

			source := view.Path
			if !view.FileExists {
				source += " (not found, defaults in effect)"
			}
			audit := "disabled"
			if view.AuditEnabled {
				audit = view.AuditDB
			}
			rows := [][]string{
				{"Config file", source},
				{"Broker", view.BrokerURL},
				{"Data dir", view.DataDir},
				{"Log dir", view.LogDir},
				{"Call timeout", view.CallTimeout},
				{"Grant wait", view.GrantWait},
				{"Audit journal", audit},
				{"Motion", yesNo(cfg.Motion.Enabled)},
				{"Digitizer", yesNo(cfg.Digitizer.Enabled)},
				{"GPIO", yesNo(cfg.GPIO.Enabled)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Setting", "Value"}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and check bench readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			if !ctx.configFound {
				fmt.Fprintln(out, "No config file found; built-in defaults are in effect")
			}
			fmt.Fprintln(out, "Configuration valid")

			colorize := shouldColorize(out)
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			return nil
		},
	}
}
