// File: cmd/pseudopoll/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// pseudopoll exercises the emulated eventfd, pipe and epoll descriptors.

package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/momentics/pseudopoll/control"
	"github.com/momentics/pseudopoll/facade"
)

var (
	configPath = flag.String("config", "", "path to a TOML configuration file")
	logLevel   = flag.String("log-level", "", "override log_level (debug, info, warn, ...)")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&demoCmd{}, "")
	subcommands.Register(&latencyCmd{}, "")
	subcommands.Register(&configCmd{}, "")
	subcommands.Register(&statsCmd{}, "")
	flag.Parse()

	log := logrus.New()
	cfg, err := loadConfig(*configPath, *logLevel)
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		os.Exit(int(subcommands.ExitUsageError))
	}
	sys, err := facade.New(cfg, facade.WithLogger(log))
	if err != nil {
		log.WithError(err).Error("building system")
		os.Exit(int(subcommands.ExitFailure))
	}
	os.Exit(int(subcommands.Execute(context.Background(), sys, log)))
}

func loadConfig(path, level string) (*control.Config, error) {
	cfg := control.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = control.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if level != "" {
		cfg.LogLevel = level
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// runtimeArgs unpacks what main hands to every command.
func runtimeArgs(args []any) (*facade.System, logrus.FieldLogger) {
	return args[0].(*facade.System), args[1].(*logrus.Logger)
}
