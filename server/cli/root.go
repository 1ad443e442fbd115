package cli

import (
	"github.com/peer-calls/mediaproducer/server/command"
)

func NewRootCommand(props Props) *command.Command {
	return command.New(command.Params{
		Name:              "mediaproducer",
		Desc:              "mediaproducer publishes RTP streams to a WebRTC media server.",
		DefaultSubCommand: "publish",
		SubCommands: []*command.Command{
			newPublishCmd(props),
			newVersionCmd(props),
		},
	})
}
