package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ilkerko/s3mirror/log"
	"github.com/ilkerko/s3mirror/mirror"
	"github.com/ilkerko/s3mirror/storage"
)

var pullHelpTemplate = `Name:
	{{.HelpName}} - {{.Usage}}

Usage:
	{{.HelpName}} [options] --bucket bucketname

Options:
	{{range .VisibleFlags}}{{.}}
	{{end}}
Examples:
	1. Download every object of a bucket into ./files
		 > s3mirror {{.HelpName}} --bucket mybucket

	2. Download a key subtree into a given directory
		 > s3mirror {{.HelpName}} --bucket mybucket --prefix logs/2026/ --destination /data/logs

	3. Mirror objects missing from a second bucket under another account
		 > s3mirror {{.HelpName}} --bucket mybucket --profile prod \
			 --upload-bucket mirrorbucket --upload-profile backup --upload-region eu-west-1
`

// NewPullCommand creates the pull command: download everything under a
// bucket/prefix and optionally mirror missing objects into a second bucket.
func NewPullCommand() *cli.Command {
	return &cli.Command{
		Name:               "pull",
		HelpName:           "pull",
		Usage:              "download a bucket subtree, optionally mirroring it to a second bucket",
		CustomHelpTemplate: pullHelpTemplate,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "bucket",
				Aliases:  []string{"b"},
				Usage:    "source bucket name",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "restrict the transfer to keys starting with the prefix",
			},
			&cli.StringFlag{
				Name:    "destination",
				Aliases: []string{"d"},
				Value:   "./files",
				Usage:   "local directory downloads land under",
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "AWS credential profile of the source side",
			},
			&cli.StringFlag{
				Name:  "region",
				Usage: "region of the source bucket",
			},
			&cli.StringFlag{
				Name:  "endpoint-url",
				Usage: "override default S3 host for custom services",
			},
			&cli.BoolFlag{
				Name:  "no-verify-ssl",
				Usage: "disable SSL certificate verification",
			},
			&cli.StringFlag{
				Name:  "upload-bucket",
				Usage: "mirror objects missing from this bucket by uploading them",
			},
			&cli.StringFlag{
				Name:  "upload-profile",
				Usage: "AWS credential profile of the destination side",
			},
			&cli.StringFlag{
				Name:  "upload-region",
				Usage: "region of the destination bucket",
			},
			&cli.StringFlag{
				Name:  "upload-endpoint-url",
				Usage: "override default S3 host of the destination side",
			},
		},
		Before: func(c *cli.Context) error {
			err := validatePullCommand(c)
			if err != nil {
				printError(givenCommand(c), c.Command.Name, err)
			}
			return err
		},
		Action: func(c *cli.Context) error {
			pull, err := NewPull(c)
			if err != nil {
				printError(givenCommand(c), c.Command.Name, err)
				return err
			}
			return pull.Run(c)
		},
	}
}

// Pull holds pull operation flags and states.
type Pull struct {
	engine      *mirror.Mirror
	fullCommand string
}

// NewPull resolves both storage sides from the command flags and builds the
// transfer engine. Source and destination are independent client instances:
// each carries its own profile, region and endpoint.
func NewPull(c *cli.Context) (*Pull, error) {
	src, err := storage.NewS3Storage(storage.Options{
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

	var dst storage.Storage
	if uploadBucket := c.String("upload-bucket"); uploadBucket != "" {
		s3dst, err := storage.NewS3Storage(storage.Options{
			Bucket:      uploadBucket,
			Profile:     c.String("upload-profile"),
			Region:      c.String("upload-region"),
			Endpoint:    c.String("upload-endpoint-url"),
			MaxRetries:  c.Int("retry-count"),
			NoVerifySSL: c.Bool("no-verify-ssl"),
		})
		if err != nil {
			return nil, err
		}
		dst = s3dst
	}

	engine := mirror.New(src, dst, mirror.Options{
		Bucket:       c.String("bucket"),
		Prefix:       c.String("prefix"),
		Destination:  c.String("destination"),
		UploadBucket: c.String("upload-bucket"),
		Workers:      c.Int("numworkers"),
		MaxAttempts:  c.Int("retry-count"),
	})

	return &Pull{
		engine:      engine,
		fullCommand: givenCommand(c),
	}, nil
}

// Run runs the transfer engine and maps the outcome to process exit status:
// non-zero iff the listing failed or at least one object ended up failed.
func (p *Pull) Run(c *cli.Context) error {
	summary, err := p.engine.Run(c.Context)

	log.Info(summary)

	if err != nil {
		printError(p.fullCommand, c.Command.Name, err)
		return err
	}

	if !summary.OK() {
		return fmt.Errorf("pull: %v of %v objects failed", summary.Failed, summary.Total)
	}

	return nil
}

func validatePullCommand(c *cli.Context) error {
	if c.String("bucket") == "" {
		return fmt.Errorf("bucket name is required")
	}

	for _, flag := range []string{"upload-profile", "upload-region", "upload-endpoint-url"} {
		if c.String(flag) != "" && c.String("upload-bucket") == "" {
			return fmt.Errorf("%q requires an upload bucket", "--"+flag)
		}
	}

	return nil
}
