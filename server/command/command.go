// Package command parses command line flags and dispatches to subcommands.
package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/pflag"
)

var ErrCommandNotFound = errors.New("command not found")

// Handler runs a command with the arguments left over after flag parsing.
type Handler interface {
	Handle(ctx context.Context, args []string) error
}

type HandlerFunc func(ctx context.Context, args []string) error

func (h HandlerFunc) Handle(ctx context.Context, args []string) error {
	return h(ctx, args)
}

// FlagRegistry registers the flags of a command before parsing.
type FlagRegistry interface {
	RegisterFlags(cmd *Command, flags *pflag.FlagSet)
}

type FlagRegistryFunc func(cmd *Command, flags *pflag.FlagSet)

func (f FlagRegistryFunc) RegisterFlags(cmd *Command, flags *pflag.FlagSet) {
	f(cmd, flags)
}

type Command struct {
	params      Params
	subCommands map[string]*Command
	writer      io.Writer
}

type Params struct {
	Name string
	Desc string
	// DefaultSubCommand runs when no subcommand is named. Flags meant for
	// it can then be passed directly to the parent command.
	DefaultSubCommand string
	FlagRegistry      FlagRegistry
	Handler           Handler
	SubCommands       []*Command
}

func New(params Params) *Command {
	subCommands := make(map[string]*Command, len(params.SubCommands))

	for _, cmd := range params.SubCommands {
		subCommands[cmd.Name()] = cmd
	}

	c := &Command{
		params:      params,
		subCommands: subCommands,
	}

	c.SetWriter(os.Stderr)

	return c
}

// SetWriter sets where usage and flag errors are printed, for this command
// and its subcommands.
func (c *Command) SetWriter(w io.Writer) {
	c.writer = w

	for _, s := range c.params.SubCommands {
		s.SetWriter(w)
	}
}

func (c *Command) Name() string {
	return c.params.Name
}

func (c *Command) Desc() string {
	return c.params.Desc
}

func (c *Command) Usage(flags *pflag.FlagSet) {
	var b strings.Builder

	flagUsages := flags.FlagUsages()

	fmt.Fprintf(&b, "Usage: %s", c.params.Name)

	if flagUsages != "" {
		b.WriteString(" [OPTIONS]")
	}

	if len(c.params.SubCommands) > 0 {
		b.WriteString(" [COMMAND] [ARG...]")
	}

	fmt.Fprintf(&b, "\n%s\n", c.params.Desc)

	if flagUsages != "" {
		fmt.Fprintf(&b, "\nOptions:\n%s\n", flagUsages)
	}

	if len(c.params.SubCommands) > 0 {
		b.WriteString("\nCommands:\n")

		width := 12

		for _, s := range c.params.SubCommands {
			if l := len(s.Name()); l > width {
				width = l
			}
		}

		for _, s := range c.params.SubCommands {
			desc := s.Desc()
			if s.Name() == c.params.DefaultSubCommand {
				desc += " (default)"
			}

			fmt.Fprintf(&b, "  %-*s %s\n", width, s.Name(), desc)
		}

		b.WriteString("\n")
	}

	_, _ = io.WriteString(c.writer, b.String())
}

// isHelp reports whether a help flag appears before the first positional
// argument.
func isHelp(args []string) bool {
	for _, arg := range args {
		if arg == "-h" || arg == "--help" {
			return true
		}

		if !strings.HasPrefix(arg, "-") {
			return false
		}
	}

	return false
}

func (c *Command) defaultArgs(args []string) []string {
	if c.params.DefaultSubCommand == "" || isHelp(args) {
		return args
	}

	if len(args) == 0 || (args[0] != "--" && strings.HasPrefix(args[0], "-")) {
		return append([]string{c.params.DefaultSubCommand}, args...)
	}

	return args
}

func (c *Command) Exec(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)

	flags.SetOutput(c.writer)
	flags.Usage = func() {
		c.Usage(flags)
	}

	// Flags after the first positional argument belong to the subcommand.
	flags.SetInterspersed(false)

	if c.params.FlagRegistry != nil {
		c.params.FlagRegistry.RegisterFlags(c, flags)
	}

	if err := flags.Parse(c.defaultArgs(args)); err != nil {
		return errors.Annotatef(err, "parse args for command: %s", c.params.Name)
	}

	args = flags.Args()

	if c.params.Handler != nil {
		if err := c.params.Handler.Handle(ctx, args); err != nil {
			return errors.Trace(err)
		}
	}

	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}

	if len(args) == 0 || len(c.subCommands) == 0 {
		return nil
	}

	subCommand, ok := c.subCommands[args[0]]
	if !ok {
		return errors.Annotatef(ErrCommandNotFound, "command: %s", args[0])
	}

	return errors.Trace(subCommand.Exec(ctx, args[1:]))
}
