package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/spf13/pflag"

	"github.com/BYTE-6D65/jumpclock/pkg/clock"
)

const version = "0.1.0"

type options struct {
	configPath string
	step       time.Duration
	monitor    time.Duration
	replay     []time.Duration
	logFile    string
}

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var opts options
	flags := pflag.NewFlagSet("clockwatch", pflag.ExitOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (JUMPCLOCK_* env vars override it)")
	flags.DurationVarP(&opts.step, "step", "s", time.Second, "override step for +/- keys")
	flags.DurationVar(&opts.monitor, "monitor", 250*time.Millisecond, "wall clock step monitor interval for the system clock (0 disables)")
	flags.DurationSliceVar(&opts.replay, "replay", nil, "deltas replayed one per 'n' key press (e.g. 1s,500ms,-2s)")
	flags.StringVar(&opts.logFile, "log-file", "", "write diagnostics to this file instead of discarding them")
	flags.Usage = usage
	flags.Parse(os.Args[1:])

	cmd := flags.Arg(0)
	switch cmd {
	case "", "watch":
		if err := startTUI(opts); err != nil {
			log.Fatalf("TUI error: %v", err)
		}
	case "config":
		cfg, err := clock.Load(opts.configPath)
		if err != nil {
			log.Fatalf("ERROR: %v", err)
		}
		fmt.Print(cfg.String())
	case "version":
		fmt.Printf("clockwatch v%s\n", version)
		fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	case "help":
		usage()
	default:
		log.Fatalf("ERROR: unknown command %q (try 'clockwatch help')", cmd)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Clockwatch - Live view of steady, system, and overridable clocks

Usage:
  clockwatch [flags] [watch]
      Launch the interactive clock view

  clockwatch [flags] config
      Print the effective configuration

  clockwatch version
      Show version and platform information

  clockwatch help
      Show this help message

Flags:
  -c, --config string      YAML config file (JUMPCLOCK_* env vars override it)
  -s, --step duration      Override step for +/- keys (default 1s)
      --monitor duration   System clock step monitor interval, 0 disables (default 250ms)
      --replay durations   Deltas replayed one per 'n' key press
      --log-file string    Write diagnostics to this file

Keys:
  o        toggle the override on the overridable clock
  + / -    step override time forward / backward
  n        replay the next delta
  c        clear the jump log
  q        quit

Examples:
  # Watch all clocks
  clockwatch

  # Step by 5 minutes and replay a scripted sequence
  clockwatch --step 5m --replay 1s,1s,-10s,1h
`)
}
