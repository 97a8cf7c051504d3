// File: cmd/pseudopoll/inspect.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/google/subcommands"

	"github.com/momentics/pseudopoll/api"
	"github.com/momentics/pseudopoll/control"
	"github.com/momentics/pseudopoll/facade"
)

// configCmd implements subcommands.Command for the "config" command.
type configCmd struct{}

// Name implements subcommands.Command.Name.
func (*configCmd) Name() string { return "config" }

// Synopsis implements subcommands.Command.Synopsis.
func (*configCmd) Synopsis() string { return "print the effective configuration as TOML" }

// Usage implements subcommands.Command.Usage.
func (*configCmd) Usage() string { return "config\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (*configCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*configCmd) Execute(_ context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	sys, log := runtimeArgs(args)
	if err := sys.Config().WriteTOML(os.Stdout); err != nil {
		log.WithError(err).Error("encoding configuration")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// statsCmd implements subcommands.Command for the "stats" command.
type statsCmd struct {
	probes bool
}

// Name implements subcommands.Command.Name.
func (*statsCmd) Name() string { return "stats" }

// Synopsis implements subcommands.Command.Synopsis.
func (*statsCmd) Synopsis() string {
	return "run a short workload and print pool metrics and debug probes"
}

// Usage implements subcommands.Command.Usage.
func (*statsCmd) Usage() string { return "stats [-probes=false]\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (s *statsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&s.probes, "probes", true, "also dump debug probes as JSON")
}

// Execute implements subcommands.Command.Execute.
func (s *statsCmd) Execute(_ context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	sys, log := runtimeArgs(args)
	if err := workload(sys); err != nil {
		log.WithError(err).Error("workload failed")
		return subcommands.ExitFailure
	}

	reg := control.NewMetricsRegistry()
	sys.PublishMetrics(reg)
	snap := reg.GetSnapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-24s %v\n", k, snap[k])
	}

	if s.probes {
		dp := control.NewDebugProbes()
		sys.RegisterProbes(dp)
		control.RegisterPlatformProbes(dp)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(dp.DumpState()); err != nil {
			log.WithError(err).Error("encoding probes")
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

// workload touches every pool once so the counters are non-zero.
func workload(sys *facade.System) error {
	efd, err := sys.Eventfd(1, api.EFD_NONBLOCK)
	if err != nil {
		return err
	}
	r, w, err := sys.Pipe2(api.O_NONBLOCK)
	if err != nil {
		return err
	}
	ep, err := sys.EpollCreate1(0)
	if err != nil {
		return err
	}
	for i, fd := range []int{efd, r} {
		if err := sys.EpollCtl(ep, api.EPOLL_CTL_ADD, fd, &api.Event{Events: api.EPOLLIN, Data: uint64(i)}); err != nil {
			return err
		}
	}
	if _, err := sys.Write(w, []byte("stats")); err != nil {
		return err
	}
	events := make([]api.Event, 2)
	if _, err := sys.EpollWait(ep, events, 0); err != nil {
		return err
	}
	buf := make([]byte, 8)
	if _, err := sys.Read(efd, buf); err != nil {
		return err
	}
	if _, err := sys.Read(efd, buf); err != nil && api.Code(err) != api.ErrCodeWouldBlock {
		return err
	}
	binary.NativeEndian.PutUint64(buf, 2)
	if _, err := sys.Write(efd, buf); err != nil {
		return err
	}
	_, err = sys.Read(r, buf)
	return err
}
