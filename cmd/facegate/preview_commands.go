package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"facegate/internal/config"
	"facegate/internal/session"
)

const defaultPreviewFrames = 10

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Camera preview utilities",
	}
	previewCmd.AddCommand(newPreviewSnapshotCommand(ctx))
	return previewCmd
}

func newPreviewSnapshotCommand(ctx *commandContext) *cobra.Command {
	var outPath string
	var frames int

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture preview frames and save the last one as a BMP image",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outPath) == "" {
				return errors.New("--out is required")
			}
			if frames <= 0 {
				return fmt.Errorf("--frames must be positive, got %d", frames)
			}
			target, err := config.ExpandPath(outPath)
			if err != nil {
				return err
			}

			_, rt, err := ctx.withRuntime(cmd, runtimeOptions{preview: true}, func(c context.Context, o *session.Orchestrator) (session.Outcome, error) {
				return o.Preview(c, frames)
			})
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			file, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("create snapshot: %w", err)
			}
			if err := rt.relay.WriteBMP(file); err != nil {
				file.Close()
				_ = os.Remove(target)
				return fmt.Errorf("write snapshot: %w", err)
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("close snapshot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote snapshot to %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination BMP file")
	cmd.Flags().IntVar(&frames, "frames", defaultPreviewFrames, "Frames to capture before saving")
	return cmd
}
