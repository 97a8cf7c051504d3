// File: cmd/pseudopoll/latency.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/pseudopoll/api"
	"github.com/momentics/pseudopoll/facade"
)

// latencyCmd implements subcommands.Command for the "latency" command.
type latencyCmd struct {
	rounds int
}

// Name implements subcommands.Command.Name.
func (*latencyCmd) Name() string { return "latency" }

// Synopsis implements subcommands.Command.Synopsis.
func (*latencyCmd) Synopsis() string {
	return "measure ping/pong wake-up latency through an epoll instance"
}

// Usage implements subcommands.Command.Usage.
func (*latencyCmd) Usage() string { return "latency [-n rounds]\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (l *latencyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&l.rounds, "n", 20, "number of round trips")
}

// Execute implements subcommands.Command.Execute.
func (l *latencyCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if l.rounds <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	sys, log := runtimeArgs(args)
	samples, err := l.run(ctx, sys)
	if err != nil {
		log.WithError(err).Error("latency run failed")
		return subcommands.ExitFailure
	}

	lo, hi, sum := samples[0], samples[0], time.Duration(0)
	for _, s := range samples {
		lo, hi, sum = min(lo, s), max(hi, s), sum+s
	}
	fmt.Printf("%d round trips: min %v avg %v max %v\n",
		len(samples), lo, sum/time.Duration(len(samples)), hi)
	return subcommands.ExitSuccess
}

func (l *latencyCmd) run(ctx context.Context, sys *facade.System) ([]time.Duration, error) {
	ping, err := sys.Eventfd(0, 0)
	if err != nil {
		return nil, err
	}
	pong, err := sys.Eventfd(0, 0)
	if err != nil {
		return nil, err
	}
	ep, err := sys.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	if err := sys.EpollCtl(ep, api.EPOLL_CTL_ADD, ping, &api.Event{Events: api.EPOLLIN, Data: uint64(ping)}); err != nil {
		return nil, err
	}

	one := make([]byte, 8)
	binary.NativeEndian.PutUint64(one, 1)
	samples := make([]time.Duration, 0, l.rounds)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		events := make([]api.Event, 1)
		buf := make([]byte, 8)
		for i := 0; i < l.rounds; i++ {
			if _, err := sys.EpollWait(ep, events, -1); err != nil {
				return err
			}
			if _, err := sys.Read(ping, buf); err != nil {
				return err
			}
			if _, err := sys.Write(pong, one); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		buf := make([]byte, 8)
		for i := 0; i < l.rounds; i++ {
			start := time.Now()
			if _, err := sys.Write(ping, one); err != nil {
				return err
			}
			if _, err := sys.Read(pong, buf); err != nil {
				return err
			}
			samples = append(samples, time.Since(start))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}
