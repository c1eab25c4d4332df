// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-biosecure.
//
// go-biosecure is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-biosecure/pkg/credstore"
	"github.com/jeremyhahn/go-biosecure/pkg/fingerprint"
)

func (a *app) newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <user>",
		Short: "Register a fingerprint credential for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStack(func(rt *stack) error {
				if _, err := rt.service.Register(cmd.Context(), args[0]); err != nil {
					return err
				}
				return a.printer().PrintResult("register", args[0], a.method(cmd, rt, args[0]))
			})
		},
	}
}

func (a *app) newAuthenticateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "authenticate <user>",
		Aliases: []string{"auth", "login"},
		Short:   "Authenticate a registered user",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStack(func(rt *stack) error {
				method, err := rt.service.AuthenticateMethod(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printer().PrintResult("authenticate", args[0], method)
			})
		},
	}
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report fingerprint availability and restriction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStack(func(rt *stack) error {
				status := rt.service.Status(cmd.Context())
				return a.printer().PrintStatus(status, rt.config.Fingerprint.Strict)
			})
		},
	}
}

func (a *app) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered users",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStack(func(rt *stack) error {
				var rows []UserRow
				for _, user := range rt.service.List(cmd.Context()) {
					record, err := rt.service.Lookup(cmd.Context(), user)
					if err != nil {
						continue
					}
					rows = append(rows, userRow(user, record))
				}
				return a.printer().PrintUsers(rows)
			})
		},
	}
}

func (a *app) newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user>",
		Short: "Show the credential registered for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStack(func(rt *stack) error {
				record, err := rt.service.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printer().PrintUsers([]UserRow{userRow(args[0], record)})
			})
		},
	}
}

func (a *app) newUnregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "unregister <user>",
		Aliases: []string{"rm"},
		Short:   "Remove a user's credential",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStack(func(rt *stack) error {
				if err := rt.service.Unregister(cmd.Context(), args[0]); err != nil {
					return err
				}
				return a.printer().PrintSuccess(fmt.Sprintf("User %s unregistered", args[0]))
			})
		},
	}
}

// method reports how the user's credential was created. An unreadable
// record is logged and reported as simulated.
func (a *app) method(cmd *cobra.Command, rt *stack, user string) credstore.Method {
	record, err := rt.service.Lookup(cmd.Context(), user)
	if err != nil {
		if !errors.Is(err, fingerprint.ErrNotRegistered) {
			a.logger.Warn("failed to look up credential", "user", user, "error", err)
		}
		return credstore.MethodSimulated
	}
	return record.Method()
}

func userRow(user string, record credstore.Record) UserRow {
	common := record.Common()
	return UserRow{
		User:      user,
		Method:    record.Method(),
		ID:        common.ID,
		CreatedAt: common.CreatedAt,
	}
}
