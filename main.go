package main

import (
	"context"
	"os"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/cli"
	"github.com/peer-calls/mediaproducer/server/logformatter"
	"github.com/peer-calls/mediaproducer/server/logger"
	"github.com/peer-calls/mediaproducer/server/multierr"
	"github.com/spf13/pflag"
)

const gitDescribe string = "v0.0.0"

const logEnvKey = "MEDIAPRODUCER_LOG"

func start(ctx context.Context, log logger.Logger, props cli.Props) error {
	props.Log = log
	props.Version = gitDescribe

	return errors.Trace(cli.Exec(ctx, props))
}

func newLogger() logger.Logger {
	return logger.New().
		WithConfig(
			logger.NewConfig(logger.ConfigMap{
				"**:pion:**":        logger.LevelWarn,
				"**:signaling":      logger.LevelInfo,
				"**:rtcp":           logger.LevelInfo,
				"**:producer":       logger.LevelDebug,
				"**:rtp_source":     logger.LevelInfo,
				"**:send_transport": logger.LevelInfo,
				"":                  logger.LevelInfo,
			}),
		).
		WithConfig(logger.NewConfigFromString(os.Getenv(logEnvKey))).
		WithFormatter(logformatter.New(logformatter.Params{})).
		WithNamespaceAppended("main")
}

func main() {
	log := newLogger()

	err := start(context.Background(), log, cli.Props{
		Args:   os.Args[1:],
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	})

	if multierr.Is(err, pflag.ErrHelp) {
		os.Exit(2)
	} else if err != nil {
		log.Error("Command error", errors.Trace(err), nil)
		os.Exit(1)
	}
}
