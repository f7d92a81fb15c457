package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/muesli/termenv"
	"github.com/nicolagi/difftrack/internal/config"
	log "github.com/sirupsen/logrus"
)

var (
	// To set this at build time, use go build -ldflags '-X main.version=something'.
	version = "unknown"

	// Flag sets are associated with the fields of a corresponding context struct. The global context is for flags
	// that are part of all flag sets, that is, all sub-commands.
	globalContext struct {
		base     string
		logLevel string
		color    bool
	}

	diffContext struct {
		context int
	}

	showContext struct {
		annotated bool
	}
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&globalContext.base, "base", config.DefaultBaseDirectoryPath, "`directory` for configuration, baselines, logs, etc.")
	var levels []string
	for _, l := range log.AllLevels {
		levels = append(levels, l.String())
	}
	fs.StringVar(&globalContext.logLevel, "verbosity", "warning", "sets the log `level`, among "+strings.Join(levels, ", "))
	fs.BoolVar(&globalContext.color, "color", true, "colour output if the terminal supports it")
	return fs
}

func exitUsage(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	_, _ = fmt.Fprintf(os.Stderr, `Usage: %s COMMAND [ARGS]

Commands:

	init: initializes configuration given the base directory
	start FILE...: tracks changes of the files from their current content
	status [FILE...]: lists the change blocks of tracked files

		Blocks are numbered from 0, the numbers are valid until the file changes again.

	show [-a] FILE: shows old lines followed by their replacements, or with -a, the current content with change markers
	diff [-U n] FILE: shows a unified diff of the baseline and the current content
	revert FILE [BLOCK]: reverts one block, or all changes, writing the file
	keep FILE [BLOCK]: accepts one block, or all changes, into the baseline
	forget FILE: stops tracking a file
	clear: stops tracking all files
	watch: records changes of tracked files as they are saved, until interrupted
	version: show version information
`, os.Args[0])
	os.Exit(2)
}

// parseBlock parses the optional block argument. No block means all
// changes, represented by -1.
func parseBlock(cmd string, args []string) int {
	if len(args) < 2 {
		return -1
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		exitUsage(fmt.Sprintf("%s: invalid block %q", cmd, args[1]))
	}
	return n
}

func main() {
	diffFlags := newFlagSet("diff")
	diffFlags.IntVar(&diffContext.context, "U", -1, "number of unified context `lines` (default from configuration)")

	showFlags := newFlagSet("show")
	showFlags.BoolVar(&showContext.annotated, "a", false, "show the current content annotated with change markers")

	// For all commands that don't take flags.
	emptyFlags := newFlagSet("empty")

	if len(os.Args) < 2 {
		exitUsage("Command name required")
	}

	var args []string
	switch cmd := os.Args[1]; cmd {
	case "diff":
		_ = diffFlags.Parse(os.Args[2:])
		if narg := diffFlags.NArg(); narg != 1 {
			exitUsage(fmt.Sprintf("diff: one file expected, got %d", narg))
		}
		args = diffFlags.Args()
	case "show":
		_ = showFlags.Parse(os.Args[2:])
		if narg := showFlags.NArg(); narg != 1 {
			exitUsage(fmt.Sprintf("show: one file expected, got %d", narg))
		}
		args = showFlags.Args()
	case "clear", "init", "version", "watch":
		_ = emptyFlags.Parse(os.Args[2:])
		if narg := emptyFlags.NArg(); narg != 0 {
			exitUsage(fmt.Sprintf("%s: no args expected, got %d", cmd, narg))
		}
	case "forget":
		_ = emptyFlags.Parse(os.Args[2:])
		if narg := emptyFlags.NArg(); narg != 1 {
			exitUsage(fmt.Sprintf("forget: one file expected, got %d", narg))
		}
		args = emptyFlags.Args()
	case "keep", "revert":
		_ = emptyFlags.Parse(os.Args[2:])
		if narg := emptyFlags.NArg(); narg != 1 && narg != 2 {
			exitUsage(fmt.Sprintf("%s: file and optional block expected, got %d args", cmd, narg))
		}
		args = emptyFlags.Args()
	case "start":
		_ = emptyFlags.Parse(os.Args[2:])
		if emptyFlags.NArg() == 0 {
			exitUsage("start: at least one file expected")
		}
		args = emptyFlags.Args()
	case "status":
		_ = emptyFlags.Parse(os.Args[2:])
		args = emptyFlags.Args()
	default:
		exitUsage(fmt.Sprintf("%q: command not recognized", cmd))
	}

	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.JSONFormatter{})
	ll, err := log.ParseLevel(globalContext.logLevel)
	if err != nil {
		log.Fatalf("Could not parse log level %q: %v", globalContext.logLevel, err)
	}
	log.SetLevel(ll)

	// The init subcommand is special, because it must create configuration, not use it.
	switch os.Args[1] {
	case "init":
		if err := config.Initialize(globalContext.base); err != nil {
			log.Fatalf("Could not initialize config in %q: %v", globalContext.base, err)
		}
		return
	case "version":
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(globalContext.base)
	if err != nil {
		log.Fatalf("Could not load config from %q: %v", globalContext.base, err)
	}

	if os.Args[1] != "status" || len(args) > 0 {
		if args, err = absolute(args); err != nil {
			log.Fatalf("Could not resolve paths: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if os.Args[1] == "watch" {
		if cfg.LogFile != "" {
			defer func() { _ = logToFile(cfg.LogFile).Close() }()
		}
		gopsListen()
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigc
			log.WithField("signal", sig.String()).Info("Stopping")
			cancel()
		}()
	}

	profile := termenv.Ascii
	if globalContext.color {
		profile = termenv.EnvColorProfile()
	}
	a, err := newApp(ctx, cfg, os.Stdout, profile)
	if err != nil {
		log.Fatalf("Could not start: %v", err)
	}

	cmdlog := log.WithField("op", os.Args[1])
	switch cmd := os.Args[1]; cmd {
	case "start":
		err = a.start(ctx, args)
	case "status":
		err = a.status(args)
	case "show":
		err = a.show(args[0], showContext.annotated)
	case "diff":
		contextLines := diffContext.context
		if contextLines < 0 {
			contextLines = cfg.ContextLines
		}
		err = a.diff(args[0], contextLines)
	case "revert":
		err = a.revert(args[0], parseBlock(cmd, args))
	case "keep":
		err = a.keep(args[0], parseBlock(cmd, args))
	case "forget":
		err = a.forget(args[0])
	case "clear":
		a.clear()
	case "watch":
		err = a.watch(ctx)
	default:
		panic("not reached")
	}
	if cerr := a.close(); cerr != nil {
		cmdlog.WithField("cause", cerr.Error()).Warning("Could not close store")
	}
	if err != nil {
		cmdlog.WithField("cause", err.Error()).Fatal("Failed")
	}
}
