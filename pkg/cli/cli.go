package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "invoice-agent",
		Usage: "Adaptive invoice decision engine with learned vendor memory",
		Commands: []*cli.Command{
			serveCommand(),
			processCommand(),
			teachCommand(),
			reviewCommand(),
			memoryCommand(),
			resetCommand(),
			demoCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
