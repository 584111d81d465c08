package main

import (
    "flag"
    "time"
)

// Options holds CLI options for the servient.
type Options struct {
    ConfigPath string
    // Demo produces and exposes a sample Thing and consumes it back.
    Demo bool
    // RunFor stops the process after the duration; 0 waits for a signal.
    RunFor time.Duration
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
    fs := flag.NewFlagSet("servient", flag.ExitOnError)
    var opts Options
    fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
    fs.BoolVar(&opts.Demo, "demo", false, "Expose a sample counter Thing and consume it")
    fs.DurationVar(&opts.RunFor, "run-for", 0, "Exit after this long (0 = until interrupted)")
    _ = fs.Parse(args)
    return opts
}
