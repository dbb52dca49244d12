package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ilkerko/s3mirror/log"
	"github.com/ilkerko/s3mirror/mirror"
	"github.com/ilkerko/s3mirror/storage"
)

var pushHelpTemplate = `Name:
	{{.HelpName}} - {{.Usage}}

Usage:
	{{.HelpName}} [options] --bucket bucketname

Options:
	{{range .VisibleFlags}}{{.}}
	{{end}}
Examples:
	1. Upload files missing from a bucket out of a previously pulled tree
		 > s3mirror {{.HelpName}} --bucket mirrorbucket --source ./files

	2. Upload under a key prefix with explicit credentials
		 > s3mirror {{.HelpName}} --bucket mirrorbucket --source /data/logs \
			 --prefix logs/2026/ --profile backup --region eu-west-1
`

// NewPushCommand creates the push command: upload every file under a local
// tree whose key is missing from the target bucket.
func NewPushCommand() *cli.Command {
	return &cli.Command{
		Name:               "push",
		HelpName:           "push",
		Usage:              "upload a local tree's files that are missing from a bucket",
		CustomHelpTemplate: pushHelpTemplate,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "bucket",
				Aliases:  []string{"b"},
				Usage:    "target bucket name",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Value:   "./files",
				Usage:   "local directory whose files are uploaded",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "key prefix prepended to every uploaded object",
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "AWS credential profile for the target bucket",
			},
			&cli.StringFlag{
				Name:  "region",
				Usage: "region of the target bucket",
			},
			&cli.StringFlag{
				Name:  "endpoint-url",
				Usage: "override default S3 host for custom services",
			},
			&cli.BoolFlag{
				Name:  "no-verify-ssl",
				Usage: "disable SSL certificate verification",
			},
		},
		Action: func(c *cli.Context) error {
			push, err := NewPushRunner(c)
			if err != nil {
				printError(givenCommand(c), c.Command.Name, err)
				return err
			}
			return push.Run(c)
		},
	}
}

// PushRunner holds push operation flags and states.
type PushRunner struct {
	runner      *mirror.Push
	fullCommand string
}

// NewPushRunner builds the upload runner from the command flags.
func NewPushRunner(c *cli.Context) (*PushRunner, error) {
	dst, err := storage.NewS3Storage(storage.Options{
		Bucket:      c.String("bucket"),
		Profile:     c.String("profile"),
		Region:      c.String("region"),
		Endpoint:    c.String("endpoint-url"),
		MaxRetries:  c.Int("retry-count"),
		NoVerifySSL: c.Bool("no-verify-ssl"),
	})
	if err != nil {
		return nil, err
	}

	runner := mirror.NewPush(dst, mirror.PushOptions{
		Bucket:      c.String("bucket"),
		Root:        c.String("source"),
		Prefix:      c.String("prefix"),
		Workers:     c.Int("numworkers"),
		MaxAttempts: c.Int("retry-count"),
	})

	return &PushRunner{
		runner:      runner,
		fullCommand: givenCommand(c),
	}, nil
}

// Run runs the upload and maps the outcome to process exit status.
func (p *PushRunner) Run(c *cli.Context) error {
	summary, err := p.runner.Run(c.Context)

	log.Info(summary)

	if err != nil {
		printError(p.fullCommand, c.Command.Name, err)
		return err
	}

	if !summary.OK() {
		return fmt.Errorf("push: %v of %v objects failed", summary.Failed, summary.Total)
	}

	return nil
}
