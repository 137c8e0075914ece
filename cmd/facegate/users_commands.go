package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"facegate/internal/logging"
	"facegate/internal/session"
	"facegate/internal/templatestore"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and remove enrolled users",
	}
	usersCmd.AddCommand(newUsersListCommand(ctx))
	usersCmd.AddCommand(newUsersDeleteCommand(ctx))
	return usersCmd
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List enrolled users",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := normalizeFormat(format)
			if err != nil {
				return err
			}
			users, err := listUsers(cmd, ctx)
			if err != nil {
				return err
			}
			if outFormat != formatTable {
				return writeStructured(cmd, outFormat, users)
			}
			out := cmd.OutOrStdout()
			if len(users) == 0 {
				fmt.Fprintln(out, "No users enrolled")
				return nil
			}
			rows := make([][]string, len(users))
			for i, id := range users {
				rows[i] = []string{strconv.Itoa(i + 1), id}
			}
			fmt.Fprintln(out, renderTable([]column{{title: "#", numeric: true}, {title: "Identity"}}, rows))
			return nil
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

// listUsers reads the template database in server mode and asks the device
// otherwise.
func listUsers(cmd *cobra.Command, ctx *commandContext) ([]string, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.ServerMode() {
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		store := templatestore.New(cfg.Paths.DatabaseFile, logger)
		store.Load()
		return nonNil(store.ListIdentities()), nil
	}
	outcome, _, err := ctx.withRuntime(cmd, runtimeOptions{quiet: true}, func(c context.Context, o *session.Orchestrator) (session.Outcome, error) {
		return o.QueryUsers(c)
	})
	if err != nil {
		return nil, err
	}
	return nonNil(outcome.Users), nil
}

func newUsersDeleteCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "delete [identity]",
		Short: "Delete one user, or every user with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case all && len(args) > 0:
				return errors.New("pass either an identity or --all, not both")
			case !all && len(args) == 0:
				return errors.New("an identity or --all is required")
			}
			_, _, err := ctx.withRuntime(cmd, runtimeOptions{}, func(c context.Context, o *session.Orchestrator) (session.Outcome, error) {
				if all {
					return o.DeleteAll(c)
				}
				return o.DeleteUser(c, args[0])
			})
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Delete every enrolled user")
	return cmd
}
