package main

import (
	"flag"
	"fmt"
	"io"

	"sourcefs/internal/cli"
	"sourcefs/internal/config"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
)

type options struct {
	ConfigPath  string
	Roots       cli.StringList
	Extensions  cli.StringList
	LogLevel    string
	NoWatch     bool
	NoColor     bool
	Once        bool
	DumpMetrics bool
	ShowVersion bool
}

func parseArgs(args []string, errOut io.Writer) (options, error) {
	fs := flag.NewFlagSet("sourcefs", flag.ContinueOnError)
	fs.SetOutput(errOut)

	opts := options{}
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to a YAML configuration file")
	fs.Var(&opts.Roots, "root", "Root directory to track (repeatable, absolute)")
	fs.Var(&opts.Extensions, "ext", "Tracked file extension, e.g. .go (repeatable, overrides config)")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warning, error")
	fs.BoolVar(&opts.NoWatch, "no-watch", false, "Scan once per root, do not watch for changes")
	fs.BoolVar(&opts.NoColor, "no-color", false, "Disable colored log output")
	fs.BoolVar(&opts.Once, "once", false, "Exit after every root's bulk scan has been committed")
	fs.BoolVar(&opts.DumpMetrics, "metrics", false, "Dump Prometheus metrics to stderr on exit")
	helpVersion := cli.AddHelpVersionFlags(fs, "", "")
	fs.Usage = func() {
		printUsage(fs)
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if helpVersion.Help {
		fs.Usage()
		return options{}, flag.ErrHelp
	}
	opts.ShowVersion = helpVersion.Version

	if fs.NArg() != 0 {
		fmt.Fprintf(errOut, "sourcefs: unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func printUsage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "Usage: sourcefs [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Tracks source roots and streams their reconciled change log.")
	fmt.Fprintln(out, "Roots come from -root flags, a -config file, or both; flags win.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	fs.PrintDefaults()
}

// buildConfig merges the optional config file with flag overrides.
// Flags win over the file. Console color is on by default; config
// files state it explicitly.
func buildConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	cfg.Log.Color = true
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	for _, dir := range opts.Roots {
		cfg.Roots = append(cfg.Roots, config.RootConfig{Dir: dir})
	}
	if len(opts.Extensions) > 0 {
		cfg.Filter.Extensions = append([]string(nil), opts.Extensions...)
		for i := range cfg.Roots {
			cfg.Roots[i].Filter = nil
		}
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.NoWatch {
		cfg.Watch.Disabled = true
	}
	if opts.NoColor {
		cfg.Log.Color = false
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if len(cfg.Roots) == 0 {
		return config.Config{}, fmt.Errorf("no roots configured: pass -root or a -config file with roots")
	}
	return cfg, nil
}
