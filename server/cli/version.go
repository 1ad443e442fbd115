package cli

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/command"
)

func newVersionCmd(props Props) *command.Command {
	return command.New(command.Params{
		Name: "version",
		Desc: "Show version information",
		Handler: command.HandlerFunc(func(ctx context.Context, args []string) error {
			_, err := fmt.Fprintln(props.Stdout, "mediaproducer", props.Version)

			return errors.Trace(err)
		}),
	})
}
