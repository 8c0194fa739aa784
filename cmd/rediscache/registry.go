package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errUsage = errors.New("bad usage")

// Handler runs one subcommand against the opened cache.
type Handler func(ctx context.Context, a *app, args []string) error

// Command describes a registered subcommand.
type Command struct {
	Usage   string // full usage for help (e.g., "get <id>"); defaults to command name
	Help    string
	MinArgs int
	Handler Handler
}

// Registry maps subcommand names to handlers and produces help text.
type Registry struct {
	commands map[string]Command
	order    []string // insertion order for stable help output
}

// NewRegistry returns an empty command registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a command. Registering the same name twice overwrites the
// previous entry. Panics if cmd.Handler is nil.
func (r *Registry) Register(name string, cmd Command) {
	if cmd.Handler == nil {
		panic("rediscache: Register called with nil handler for " + name)
	}
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = cmd
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Dispatch runs the command named by args[0] with the remaining args.
func (r *Registry) Dispatch(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		_, _ = io.WriteString(a.out, r.HelpText())
		return nil
	}
	cmd, ok := r.commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", args[0])
	}
	if len(args)-1 < cmd.MinArgs {
		usage := cmd.Usage
		if usage == "" {
			usage = args[0]
		}
		return fmt.Errorf("%w: %s", errUsage, usage)
	}
	return cmd.Handler(ctx, a, args[1:])
}

// HelpText lists all registered commands in registration order.
func (r *Registry) HelpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range r.order {
		cmd := r.commands[name]
		display := name
		if cmd.Usage != "" {
			display = cmd.Usage
		}
		_, _ = fmt.Fprintf(&b, "  %-34s %s\n", display, cmd.Help)
	}
	return b.String()
}
