package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"facegate/internal/preflight"
)

const statusLabelWidth = 20

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the driver, serial port, and data directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := normalizeFormat(format)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if outFormat != formatTable {
				if err := writeStructured(cmd, outFormat, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, r := range results {
					fmt.Fprintln(out, renderCheck(r, colorize))
				}
			}
			if preflight.Failed(results) {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func renderCheck(r preflight.Result, colorize bool) string {
	label := "OK"
	c := color.New(color.FgGreen)
	if !r.Passed {
		label = "ERROR"
		c = color.New(color.FgRed)
	}
	if !colorize {
		c.DisableColor()
	}
	return c.Sprintf("  %-*s [%s] %s", statusLabelWidth, r.Name+":", label, r.Detail)
}
