package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"facegate/internal/device"
	"facegate/internal/session"
)

type infoReport struct {
	Device   *session.DeviceInfo `json:"device,omitempty" yaml:"device,omitempty"`
	Settings *device.AuthConfig  `json:"settings,omitempty" yaml:"settings,omitempty"`
	Users    []string            `json:"users" yaml:"users"`
	Mode     string              `json:"mode" yaml:"mode"`
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Connect, pair, and show firmware, settings, and enrolled users",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := normalizeFormat(format)
			if err != nil {
				return err
			}
			structured := outFormat != formatTable
			outcome, _, err := ctx.withRuntime(cmd, runtimeOptions{quiet: structured}, func(c context.Context, o *session.Orchestrator) (session.Outcome, error) {
				return o.Initialize(c)
			})
			if err != nil {
				return err
			}
			cfg, _ := ctx.ensureConfig()
			report := infoReport{
				Device:   outcome.DeviceInfo,
				Settings: outcome.Settings,
				Users:    nonNil(outcome.Users),
				Mode:     cfg.Flow.Mode,
			}
			if structured {
				return writeStructured(cmd, outFormat, report)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderInfo(report))
			return nil
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func renderInfo(report infoReport) string {
	var rows [][]string
	if report.Device != nil {
		rows = append(rows, []string{"Title", report.Device.Title})
		rows = append(rows, []string{"Firmware", strings.Join(report.Device.Firmware, "\n")})
		rows = append(rows, []string{"Paired", yesNo(report.Device.Paired)})
	}
	if report.Settings != nil {
		rows = append(rows, []string{"Security", report.Settings.SecurityLevel.String()})
		rows = append(rows, []string{"Camera", report.Settings.CameraRotation.String()})
	}
	rows = append(rows, []string{"Flow mode", report.Mode})
	rows = append(rows, []string{"Users", fmt.Sprintf("%d", len(report.Users))})
	return renderProperties("Property", rows)
}

func newEnrollCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <identity>",
		Short: "Enroll a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := args[0]
			_, _, err := ctx.withRuntime(cmd, runtimeOptions{}, func(c context.Context, o *session.Orchestrator) (session.Outcome, error) {
				return o.Enroll(c, identity)
			})
			return err
		},
	}
}

func newAuthCommand(ctx *commandContext) *cobra.Command {
	var loop bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate the face in front of the camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, _, err := ctx.withRuntime(cmd, runtimeOptions{}, func(c context.Context, o *session.Orchestrator) (session.Outcome, error) {
				if loop {
					return o.AuthenticateLoop(c)
				}
				return o.Authenticate(c)
			})
			if loop && outcome.Result == session.ResultCanceled {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "Authenticate repeatedly until interrupted")
	return cmd
}

func newStandbyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "standby",
		Short: "Put the device into low power mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := ctx.withRuntime(cmd, runtimeOptions{}, func(c context.Context, o *session.Orchestrator) (session.Outcome, error) {
				return o.Standby(c)
			})
			return err
		},
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
