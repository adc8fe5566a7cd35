// Command rtsv is a real-time trace server: it ingests trace records from
// one or more descriptors and renders them live to MSC, VCD and/or SDL
// output (spec §1, §5).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/titglob/rtsv/internal/config"
	"github.com/titglob/rtsv/internal/driver"
	"github.com/titglob/rtsv/internal/rtsvlog"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, _, err := config.Parse(args)
	if err != nil {
		if errors.Is(err, config.ErrHelp) || errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "rtsv: %s\n", err)
		return 1
	}

	rtsvlog.Init(cfg.LogLevel, cfg.LogDate)

	d, err := driver.New(cfg)
	if err != nil {
		rtsvlog.Errorf("starting up: %s", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		rtsvlog.Warnf("signal received, draining and shutting down")
		cancel()
	}()

	runErr := d.Run(ctx)
	signal.Stop(sigs)
	cancel()

	if err := d.Finalize(); err != nil {
		rtsvlog.Errorf("finalizing output: %s", err)
		return 1
	}

	if runErr != nil {
		rtsvlog.Errorf("run: %s", runErr)
		return 1
	}
	rtsvlog.Infof("received=%d dispatched=%d rejected=%d errors=%d",
		d.Stats.Received.Load(), d.Stats.Dispatched.Load(), d.Stats.Rejected.Load(), d.Stats.Errors.Load())
	return 0
}
