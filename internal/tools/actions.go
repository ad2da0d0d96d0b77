package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrUnknownAction = errors.New("tools: unknown action")

const DefaultActionTimeout = 10 * time.Second

// Actions maps quick-action names to command lines.
type Actions struct {
	runner   CommandRunner
	timeout  time.Duration
	commands map[string][]string

	wg sync.WaitGroup
}

// NewActions splits each command line on whitespace. Blank names or lines
// are skipped.
func NewActions(runner CommandRunner, commands map[string]string, timeout time.Duration) *Actions {
	if runner == nil {
		runner = ExecRunner{}
	}
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	a := &Actions{runner: runner, timeout: timeout, commands: make(map[string][]string, len(commands))}
	for name, line := range commands {
		name = strings.TrimSpace(name)
		argv := strings.Fields(line)
		if name == "" || len(argv) == 0 {
			continue
		}
		a.commands[name] = argv
	}
	return a
}

func (a *Actions) Names() []string {
	out := make([]string, 0, len(a.commands))
	for name := range a.commands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run starts action in the background. Unknown names are logged and ignored.
func (a *Actions) Run(action string) {
	if _, ok := a.commands[action]; !ok {
		log.Debug().Str("action", action).Msg("tools.Actions.Run unconfigured")
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if _, err := a.RunSync(ctx, action); err != nil {
			log.Warn().Err(err).Str("action", action).Msg("tools.Actions.Run")
		}
	}()
}

// Wait blocks until every background run has returned.
func (a *Actions) Wait() {
	a.wg.Wait()
}

func (a *Actions) RunSync(ctx context.Context, action string) (Result, error) {
	argv, ok := a.commands[action]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	res, err := a.runner.Run(ctx, argv)
	res.Action = action
	log.Info().
		Str("action", action).
		Int32("exit_code", res.ExitCode).
		Dur("elapsed", res.Elapsed).
		Msg("tools.Actions.RunSync")
	if err != nil {
		return res, fmt.Errorf("run %s: %w", action, err)
	}
	return res, nil
}
