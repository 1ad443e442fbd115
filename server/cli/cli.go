// Package cli contains the mediaproducer commands.
package cli

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/logger"
)

type Props struct {
	Log     logger.Logger
	Version string
	Args    []string
	// Stdin receives control commands of the publish command.
	Stdin  io.Reader
	Stdout io.Writer
}

// Exec runs the command named by props.Args until it returns or the process
// receives SIGINT or SIGTERM.
func Exec(ctx context.Context, props Props) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := NewRootCommand(props).Exec(ctx, props.Args)

	return errors.Trace(err)
}
