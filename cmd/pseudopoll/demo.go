// File: cmd/pseudopoll/demo.go
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
	"github.com/momentics/pseudopoll/reactor"
)

// demoCmd implements subcommands.Command for the "demo" command.
type demoCmd struct {
	delay time.Duration
}

// Name implements subcommands.Command.Name.
func (*demoCmd) Name() string { return "demo" }

// Synopsis implements subcommands.Command.Synopsis.
func (*demoCmd) Synopsis() string {
	return "blocking eventfd read woken by a delayed write, then a pipe round trip through a looper"
}

// Usage implements subcommands.Command.Usage.
func (*demoCmd) Usage() string { return "demo [-delay 50ms]\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (d *demoCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&d.delay, "delay", 50*time.Millisecond, "how long the writer waits before writing")
}

// Execute implements subcommands.Command.Execute.
func (d *demoCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	sys, log := runtimeArgs(args)

	if err := d.counter(ctx, sys); err != nil {
		log.WithError(err).Error("eventfd demo failed")
		return subcommands.ExitFailure
	}
	if err := d.pipe(sys); err != nil {
		log.WithError(err).Error("pipe demo failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (d *demoCmd) counter(ctx context.Context, sys *facade.System) error {
	fd, err := sys.Eventfd(0, 0)
	if err != nil {
		return err
	}

	g, _ := errgroup.WithContext(ctx)
	var got uint64
	var woke time.Time
	start := time.Now()
	g.Go(func() error {
		buf := make([]byte, 8)
		if _, err := sys.Read(fd, buf); err != nil {
			return err
		}
		got, woke = binary.NativeEndian.Uint64(buf), time.Now()
		return nil
	})
	g.Go(func() error {
		time.Sleep(d.delay)
		buf := make([]byte, 8)
		binary.NativeEndian.PutUint64(buf, 5)
		_, err := sys.Write(fd, buf)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Printf("eventfd %d: read %d after %v (writer delay %v, poll interval %v)\n",
		fd, got, woke.Sub(start).Round(time.Millisecond), d.delay, sys.Config().PollInterval.Duration)
	return nil
}

func (d *demoCmd) pipe(sys *facade.System) error {
	r, w, err := sys.Pipe()
	if err != nil {
		return err
	}
	lp, err := reactor.NewLooper(sys)
	if err != nil {
		return err
	}
	defer lp.Close()

	var msg string
	var readErr error
	err = lp.Register(r, api.EPOLLIN, func(fd int, _ api.EventMask) {
		buf := make([]byte, 64)
		n, err := sys.Read(fd, buf)
		if err != nil {
			readErr = err
			return
		}
		msg = string(buf[:n])
	})
	if err != nil {
		return err
	}

	start := time.Now()
	if _, err := sys.Write(w, []byte("ping")); err != nil {
		return err
	}
	n, err := lp.Poll(1000)
	if err != nil {
		return err
	}
	if readErr != nil {
		return readErr
	}
	fmt.Printf("pipe %d->%d: looper dispatched %d callback(s), read %q in %v\n",
		w, r, n, msg, time.Since(start).Round(time.Microsecond))
	return nil
}
