package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"facegate/internal/device"
	"facegate/internal/session"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change device authentication settings",
	}
	settingsCmd.AddCommand(newSettingsShowCommand(ctx))
	settingsCmd.AddCommand(newSettingsSetCommand(ctx))
	return settingsCmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the security level and camera rotation",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := normalizeFormat(format)
			if err != nil {
				return err
			}
			outcome, _, err := ctx.withRuntime(cmd, runtimeOptions{quiet: true}, func(c context.Context, o *session.Orchestrator) (session.Outcome, error) {
				return o.QuerySettings(c)
			})
			if err != nil {
				return err
			}
			if outcome.Settings == nil {
				return errors.New("device returned no settings")
			}
			if outFormat != formatTable {
				return writeStructured(cmd, outFormat, settingsView(*outcome.Settings))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSettings(*outcome.Settings))
			return nil
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	var security string
	var rotation string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the security level and camera rotation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if security == "" && rotation == "" {
				return errors.New("set at least one of --security or --rotation")
			}
			var level device.SecurityLevel
			if security != "" {
				parsed, ok := device.ParseSecurityLevel(security)
				if !ok {
					return fmt.Errorf("invalid --security %q (expected high or medium)", security)
				}
				level = parsed
			}
			var rot device.CameraRotation
			if rotation != "" {
				parsed, ok := device.ParseCameraRotation(rotation)
				if !ok {
					return fmt.Errorf("invalid --rotation %q (expected 0 or 180)", rotation)
				}
				rot = parsed
			}

			_, _, err := ctx.withRuntime(cmd, runtimeOptions{}, func(c context.Context, o *session.Orchestrator) (session.Outcome, error) {
				desired := device.AuthConfig{SecurityLevel: level, CameraRotation: rot}
				if security == "" || rotation == "" {
					current, err := o.QuerySettings(c)
					if err != nil {
						return current, err
					}
					if current.Settings != nil {
						desired = mergeSettings(*current.Settings, desired, security != "", rotation != "")
					}
				}
				return o.SetSettings(c, desired)
			})
			return err
		},
	}
	cmd.Flags().StringVar(&security, "security", "", "Security level: high or medium")
	cmd.Flags().StringVar(&rotation, "rotation", "", "Camera rotation in degrees: 0 or 180")
	return cmd
}

// mergeSettings keeps current values for settings the user did not pass.
func mergeSettings(current, desired device.AuthConfig, setSecurity, setRotation bool) device.AuthConfig {
	merged := current
	if setSecurity {
		merged.SecurityLevel = desired.SecurityLevel
	}
	if setRotation {
		merged.CameraRotation = desired.CameraRotation
	}
	return merged
}

type settingsOutput struct {
	Security string `json:"security" yaml:"security"`
	Rotation string `json:"rotation" yaml:"rotation"`
}

func settingsView(cfg device.AuthConfig) settingsOutput {
	rotation := "0"
	if cfg.CameraRotation == device.Rotation180 {
		rotation = "180"
	}
	return settingsOutput{
		Security: cfg.SecurityLevel.String(),
		Rotation: rotation,
	}
}

func renderSettings(cfg device.AuthConfig) string {
	return renderProperties("Setting", [][]string{
		{"Security", cfg.SecurityLevel.String()},
		{"Camera", cfg.CameraRotation.String()},
	})
}
