package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/srodi/threadtop/pkg/rank"
)

type commandKind int

const (
	cmdMode commandKind = iota + 1
	cmdLimit
	cmdClean
	cmdHelp
	cmdQuit
	cmdAll
)

// command is one parsed line of interactive input.
type command struct {
	kind  commandKind
	mode  rank.Mode
	limit int
}

const helpText = ` Commands:
  1..6        switch mode: 1 cpu, 2 syscpu, 3 totalcpu, 4 totalsyscpu, 5 memory, 6 totalmemory
  m <mode>    switch mode by name or digit
  l <n>       show the top n threads
  c           clear sampling history
  a           list every thread with its name and state
  h           show this help
  q           quit
`

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	switch verb {
	case "1", "2", "3", "4", "5", "6":
		if len(args) != 0 {
			break
		}
		mode, err := rank.ParseMode(verb)
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdMode, mode: mode}, nil
	case "m":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: m <mode>")
		}
		mode, err := rank.ParseMode(args[0])
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdMode, mode: mode}, nil
	case "l":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: l <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("%w: %q", rank.ErrInvalidLimit, args[0])
		}
		return command{kind: cmdLimit, limit: n}, nil
	case "c":
		return command{kind: cmdClean}, nil
	case "a":
		return command{kind: cmdAll}, nil
	case "h":
		return command{kind: cmdHelp}, nil
	case "q":
		return command{kind: cmdQuit}, nil
	}
	return command{}, fmt.Errorf("unknown command %q", line)
}

// readCommands forwards every valid line of r to the returned channel until
// r is exhausted or ctx is done. Invalid lines are reported via onError.
func readCommands(ctx context.Context, r io.Reader, onError func(error)) <-chan command {
	out := make(chan command)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if strings.TrimSpace(scanner.Text()) == "" {
				continue
			}
			cmd, err := parseCommand(scanner.Text())
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			select {
			case out <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
