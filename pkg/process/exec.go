// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package process

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
)

// Error is a process error class.
var Error = errs.Class("process error")

// Execute runs a *cobra.Command and sets up process-wide configuration:
// flags are mirrored into viper, so every option can also be supplied
// through the environment (VNSYNC_ prefix) or an optional config file.
func Execute(cmd *cobra.Command) {
	cfgFile := flag.String("config", "", "config file")

	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	cobra.OnInitialize(func() {
		_ = viper.BindPFlags(cmd.PersistentFlags())
		for _, sub := range cmd.Commands() {
			_ = viper.BindPFlags(sub.Flags())
		}
		viper.SetEnvPrefix("vnsync")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		viper.AutomaticEnv()
		if *cfgFile != "" {
			viper.SetConfigFile(*cfgFile)
			_ = viper.ReadInConfig()
		}

		// values from the environment or the config file apply to any
		// flag left at its default
		apply := func(flags *pflag.FlagSet) {
			flags.VisitAll(func(f *pflag.Flag) {
				if !f.Changed && viper.IsSet(f.Name) {
					_ = flags.Set(f.Name, viper.GetString(f.Name))
				}
			})
		}
		apply(cmd.PersistentFlags())
		for _, sub := range cmd.Commands() {
			apply(sub.Flags())
		}
	})

	Must(cmd.Execute())
}

// Ctx returns a context that is cancelled when the process receives an
// interrupt or termination signal.
func Ctx() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Must checks for errors.
func Must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
