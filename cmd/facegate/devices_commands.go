package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"facegate/internal/logging"
	"facegate/internal/serialport"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Discover serial ports that may carry the module",
	}
	devicesCmd.AddCommand(newDevicesListCommand(ctx))
	devicesCmd.AddCommand(newDevicesWatchCommand(ctx))
	return devicesCmd
}

type portView struct {
	serialport.Port
	Selected bool `json:"selected" yaml:"selected"`
}

func newDevicesListCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List serial ports and the one auto-detection would pick",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := normalizeFormat(format)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ports, err := serialport.Detect(cmd.Context())
			if err != nil {
				return fmt.Errorf("detect serial ports: %w", err)
			}
			selected, selectErr := serialport.Select(ports, cfg.Device)

			views := make([]portView, len(ports))
			for i, port := range ports {
				views[i] = portView{Port: port, Selected: selectErr == nil && port.Path == selected.Path}
			}
			if outFormat != formatTable {
				return writeStructured(cmd, outFormat, views)
			}

			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "No serial ports found")
				return nil
			}
			rows := make([][]string, len(views))
			for i, v := range views {
				rows[i] = []string{v.Path, string(v.Type), v.VendorID, yesNo(v.Selected)}
			}
			fmt.Fprintln(out, renderTable(textColumns("Port", "Type", "Vendor", "Selected"), rows))
			if selectErr != nil {
				fmt.Fprintf(out, "Auto-detection: %v\n", selectErr)
			}
			return nil
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newDevicesWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print serial ports as they are attached and removed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			out := cmd.OutOrStdout()
			watcher := serialport.NewWatcher(logger, func(ev serialport.Event) {
				line := fmt.Sprintf("%-8s %s (%s)", ev.Action, ev.Port.Path, ev.Port.Type)
				if ev.Port.VendorID != "" {
					line += " vendor " + ev.Port.VendorID
				}
				fmt.Fprintln(out, line)
			})

			watchCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := watcher.Start(watchCtx); err != nil {
				return err
			}
			defer watcher.Stop()

			fmt.Fprintln(out, "Watching serial ports, press Ctrl+C to stop")
			<-watchCtx.Done()
			return nil
		},
	}
}
