package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"facegate/internal/journal"
)

const defaultHistoryLimit = 20

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := normalizeFormat(format)
			if err != nil {
				return err
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			return ctx.withJournal(func(j *journal.Journal) error {
				entries, err := j.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if outFormat != formatTable {
					if entries == nil {
						entries = []journal.Entry{}
					}
					return writeStructured(cmd, outFormat, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}
				fmt.Fprintln(out, renderHistory(entries))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "Maximum number of jobs to show")
	addFormatFlag(cmd, &format)
	cmd.AddCommand(newHistoryClearCommand(ctx))
	return cmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every recorded job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJournal(func(j *journal.Journal) error {
				removed, err := j.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", removed)
				return nil
			})
		},
	}
}

func (c *commandContext) withJournal(fn func(*journal.Journal) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	j, err := journal.Open(cfg.Paths.JournalFile)
	if err != nil {
		return fmt.Errorf("open job journal: %w", err)
	}
	defer j.Close()
	return fn(j)
}

func renderHistory(entries []journal.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		subject := e.Identity
		if e.MatchedIdentity != "" {
			subject = e.MatchedIdentity
		}
		rows = append(rows, []string{
			e.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			e.Kind,
			subject,
			e.Result,
			e.Message,
			formatDuration(e.Duration),
		})
	}
	cols := append(textColumns("Finished", "Kind", "Identity", "Result", "Message"), column{title: "Took", numeric: true})
	return renderTable(cols, rows)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	}
	return d.Round(100 * time.Millisecond).String()
}
