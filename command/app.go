package command

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/ilkerko/s3mirror/fdlimit"
	"github.com/ilkerko/s3mirror/log"
	"github.com/ilkerko/s3mirror/version"
)

const (
	defaultWorkerCount = 30
	defaultRetryCount  = 5

	appName = "s3mirror"
)

var app = &cli.App{
	Name:    appName,
	Usage:   "bulk S3 downloader and cross-account bucket mirror",
	Version: version.GetHumanVersion(),
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "enable JSON formatted output",
		},
		&cli.IntFlag{
			Name:  "numworkers",
			Value: defaultWorkerCount,
			Usage: "number of objects transferred concurrently",
		},
		&cli.IntFlag{
			Name:    "retry-count",
			Aliases: []string{"r"},
			Value:   defaultRetryCount,
			Usage:   "number of times a failing transfer will be attempted per object",
		},
		&cli.StringFlag{
			Name:  "log",
			Value: "info",
			Usage: "log level: (debug, info, error)",
		},
	},
	Before: func(c *cli.Context) error {
		retryCount := c.Int("retry-count")
		workerCount := c.Int("numworkers")
		printJSON := c.Bool("json")
		logLevel := c.String("log")

		// the logger must exist before validation so a rejected flag is
		// reported instead of lost
		log.Init(logLevel, printJSON)

		// validation
		if retryCount < 1 {
			return fmt.Errorf("retry count must be a positive value")
		}
		if workerCount < 1 {
			return fmt.Errorf("worker count must be a positive value")
		}

		// pick up AWS_* overrides from a local .env if one exists
		if _, err := os.Stat(".env"); err == nil {
			if err := godotenv.Load(); err != nil {
				log.Warning(log.WarningMessage{
					Err: fmt.Sprintf("could not load .env: %v", err),
				})
			}
		}

		// one open file plus one socket per in-flight transfer
		if err := fdlimit.Raise(); err != nil {
			log.Warning(log.WarningMessage{
				Err: fmt.Sprintf("could not raise open file limit: %v", err),
			})
		}

		return nil
	},
	After: func(c *cli.Context) error {
		log.Close()
		return nil
	},
	ExitErrHandler: func(c *cli.Context, err error) {
		if err != nil {
			printError(givenCommand(c), c.Command.Name, err)
		}
	},
}

// Main runs the application and returns the error.
func Main(ctx context.Context, args []string) error {
	app.Commands = []*cli.Command{
		NewPullCommand(),
		NewPushCommand(),
		NewVersionCommand(),
	}

	return app.RunContext(ctx, args)
}
