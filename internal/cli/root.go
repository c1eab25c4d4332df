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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-biosecure/internal/config"
	"github.com/jeremyhahn/go-biosecure/pkg/logging"
)

// app carries state shared by every subcommand of one root command.
type app struct {
	v      *viper.Viper
	out    io.Writer
	config *config.Config
	logger *logging.Logger
}

// NewRootCmd builds the biosecure command tree.
func NewRootCmd() *cobra.Command {
	a := &app{
		v:   viper.New(),
		out: os.Stdout,
	}
	a.v.SetEnvPrefix("BIOSECURE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "biosecure",
		Short: "go-biosecure CLI - Fingerprint registration and authentication",
		Long: `go-biosecure registers and authenticates users with the platform
fingerprint authenticator. When the environment blocks the native
capability (capability disabled, permissions policy denial or an
embedded context) it falls back to a simulated credential so that the
user flow can still be exercised.

Use --strict to turn that fallback into an error.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := loadConfig(a.v)
			if err != nil {
				return err
			}
			a.config = cfg
			a.logger = cfg.Logger()
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagConfig, "", "config file (YAML)")
	flags.StringP(flagOutput, "o", "text", "output format (text, json, table)")
	flags.String(flagStorage, "", "storage backend (memory, file, vault)")
	flags.String(flagDataDir, "", "directory for file storage (default is $HOME/.biosecure)")
	flags.String(flagRPID, "", "relying party ID")
	flags.Bool(flagStrict, false, "fail instead of falling back to a simulated credential")
	flags.Bool(flagNoVerify, false, "skip verification of authenticator responses")
	flags.String(flagLogLevel, "", "log level (debug, info, warn, error)")
	flags.String(flagProvider, "", "authenticator provider (software, none)")
	flags.StringSlice(flagEmulate, nil,
		"emulate environment conditions (disabled, policy_denied, embedded, probe_failure, no_sensor, refuse_verification)")
	_ = a.v.BindPFlags(flags)

	rootCmd.AddCommand(
		a.newRegisterCmd(),
		a.newAuthenticateCmd(),
		a.newStatusCmd(),
		a.newListCmd(),
		a.newShowCmd(),
		a.newUnregisterCmd(),
		a.newServeCmd(),
		a.newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) printer() *Printer {
	return NewPrinter(a.v.GetString(flagOutput), a.out)
}

// withStack builds the stack, runs fn and closes it again.
func (a *app) withStack(fn func(rt *stack) error) error {
	if a.config == nil {
		return fmt.Errorf("configuration not loaded")
	}
	rt, err := newStack(a.config, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			a.logger.Warn("failed to close storage", "error", cerr)
		}
	}()
	return fn(rt)
}
