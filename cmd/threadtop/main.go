//go:build linux

package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/srodi/threadtop/pkg/collector/proc"
	"github.com/srodi/threadtop/pkg/collector/sched"
	"github.com/srodi/threadtop/pkg/config"
	"github.com/srodi/threadtop/pkg/rank"
	"github.com/srodi/threadtop/pkg/ui"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

type runConfig struct {
	pid      int32
	mode     rank.Mode
	widthSet bool
	config.Config
}

func parseConfig(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("threadtop", flag.ContinueOnError)
	def := config.Default()
	pid := fs.Int("pid", 0, "pid of the process to inspect (may also be given as the first argument)")
	configPath := fs.String("config", "", "optional YAML config file; flags override its values")
	interval := fs.Duration("interval", def.Interval, "sampling interval (e.g. 3s, 1m)")
	limit := fs.Int("limit", def.Limit, "number of threads to display")
	mode := fs.String("mode", def.Mode, "ranking mode: cpu, syscpu, totalcpu, totalsyscpu, memory, totalmemory or 1..6")
	width := fs.Int("width", def.Width, "console width")
	nameFilter := fs.String("name-filter", "", "only show threads whose name contains this substring (case-insensitive)")
	iterations := fs.Int("iterations", 0, "stop after this many refreshes (0 runs until interrupted)")
	logFile := fs.String("log-file", "", "write diagnostics to this file instead of stderr")
	useEBPF := fs.Bool("ebpf", def.EBPF, "count per-thread context switches with an eBPF tracepoint")
	if err := fs.Parse(args); err != nil {
		return runConfig{}, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return runConfig{}, err
	}
	widthSet := cfg.Width != def.Width
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interval":
			cfg.Interval = *interval
		case "limit":
			cfg.Limit = *limit
		case "mode":
			cfg.Mode = *mode
		case "width":
			cfg.Width = *width
			widthSet = true
		case "name-filter":
			cfg.NameFilter = *nameFilter
		case "iterations":
			cfg.Iterations = *iterations
		case "log-file":
			cfg.LogFile = *logFile
		case "ebpf":
			cfg.EBPF = *useEBPF
		}
	})

	rc := runConfig{pid: int32(*pid), Config: cfg, widthSet: widthSet}
	if rc.pid == 0 && fs.NArg() > 0 {
		n, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			return runConfig{}, fmt.Errorf("invalid pid %q", fs.Arg(0))
		}
		rc.pid = int32(n)
	}
	if rc.pid <= 0 {
		return runConfig{}, errors.New("a target pid is required")
	}
	rc.mode, err = rc.Validate()
	if err != nil {
		return runConfig{}, err
	}
	return rc, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("threadtop: %v", err)
	}

	closeLog, err := setupLogging(cfg.LogFile)
	if err != nil {
		log.Fatalf("setting up logging: %v", err)
	}
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := proc.Open(ctx, cfg.pid)
	if err != nil {
		log.Fatalf("opening process: %v", err)
	}
	caps := source.Probe(ctx)

	var (
		switches  switchSource
		collector *sched.Collector
	)
	if cfg.EBPF {
		collector, err = sched.NewCollector(cfg.pid)
		if err != nil {
			log.Printf("context switch counter disabled: %v", err)
		} else {
			switches = collector
		}
	}
	release := func() {
		if collector != nil {
			if err := collector.Close(); err != nil {
				log.Printf("closing context switch counter: %v", err)
			}
		}
		if err := source.Close(); err != nil {
			log.Printf("closing process source: %v", err)
		}
	}

	if !cfg.widthSet {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			cfg.Width = max(w, config.MinWidth)
		}
	}

	r := newReporter(cfg.Config, cfg.mode, source, switches, caps)
	self := int32(os.Getpid())
	r.selfCPU = func() (time.Duration, error) { return proc.SelfCPUTime(ctx, self) }

	cleanupTerminal := enableSingleView()
	commands := readCommands(ctx, os.Stdin, func(err error) { log.Printf("ignoring input: %v", err) })
	err = run(ctx, r, cfg, commands)

	// os.Exit skips deferred calls, so release everything first
	cleanupTerminal()
	release()
	if code := exitStatus(err, os.Stderr); code != 0 {
		stop()
		if cerr := closeLog(); cerr != nil {
			fmt.Fprintln(os.Stderr, cerr)
		}
		os.Exit(code)
	}
}

// exitStatus reports why the loop ended and returns the process exit code.
func exitStatus(err error, w io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, proc.ErrProcessGone):
		fmt.Fprintln(w, "ERROR: Could not fetch data - Process terminated?")
	default:
		fmt.Fprintf(w, "threadtop: %v\n", err)
	}
	return 1
}

func run(ctx context.Context, r *reporter, cfg runConfig, commands <-chan command) error {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	refreshes := 0
	refresh := func() (bool, error) {
		var buf bytes.Buffer
		buf.WriteString(ui.Banner())
		fmt.Fprintf(&buf, "threadtop (press q or Ctrl+C to exit) | Interval: %v\n\n", cfg.Interval)
		if err := r.cycle(ctx, &buf); err != nil {
			return false, err
		}
		clearScreen()
		fmt.Print(buf.String())
		refreshes++
		return cfg.Iterations > 0 && refreshes >= cfg.Iterations, nil
	}

	if done, err := refresh(); err != nil || done {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			if r.apply(cmd) {
				return nil
			}
			if done, err := refresh(); err != nil || done {
				return err
			}
			ticker.Reset(cfg.Interval)
		case <-ticker.C:
			if done, err := refresh(); err != nil || done {
				return err
			}
		}
	}
}

func clearScreen() {
	fmt.Print("\033[H\033[2J")
}

func enableSingleView() func() {
	stdoutFD := int(os.Stdout.Fd())
	stdinFD := int(os.Stdin.Fd())
	if !term.IsTerminal(stdoutFD) {
		return func() {}
	}

	fmt.Print("\033[?1049h") // switch to alternate buffer
	fmt.Print("\033[?25l")   // hide cursor

	var restore []func()
	if term.IsTerminal(stdinFD) {
		if undoEcho, err := disableInputEcho(stdinFD); err != nil {
			log.Printf("unable to suppress stdin echo: %v", err)
		} else if undoEcho != nil {
			restore = append(restore, undoEcho)
		}
	}

	done := false
	return func() {
		if done {
			return
		}
		done = true
		for i := len(restore) - 1; i >= 0; i-- {
			restore[i]()
		}
		fmt.Print("\033[?25h")   // show cursor
		fmt.Print("\033[?1049l") // restore main buffer
	}
}

// disableInputEcho turns off stdin echo so typed commands do not scroll the
// single view. Commands are still read line by line.
func disableInputEcho(fd int) (func(), error) {
	termState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	updated := *termState
	updated.Lflag &^= unix.ECHO

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &updated); err != nil {
		return nil, err
	}

	return func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, termState)
	}, nil
}
