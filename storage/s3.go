package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/endpoints"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

var _ Storage = (*S3)(nil)

// S3 is a bucket-bound storage type which interacts with S3API,
// DownloaderAPI and UploaderAPI.
type S3 struct {
	api        s3iface.S3API
	downloader s3manageriface.DownloaderAPI
	uploader   s3manageriface.UploaderAPI
	bucket     string
	opts       Options
}

// Options stores configuration for a single S3 side. The source and
// destination buckets of a sync are configured independently.
type Options struct {
	Bucket      string
	Profile     string
	Region      string
	Endpoint    string
	MaxRetries  int
	NoVerifySSL bool
}

// NewS3Storage creates a new S3 session bound to opts.Bucket.
func NewS3Storage(opts Options) (*S3, error) {
	awsSession, err := newAWSSession(opts)
	if err != nil {
		return nil, err
	}

	return &S3{
		api:        s3.New(awsSession),
		downloader: s3manager.NewDownloader(awsSession),
		uploader:   s3manager.NewUploader(awsSession),
		bucket:     opts.Bucket,
		opts:       opts,
	}, nil
}

// List fetches a single page of the bucket listing. Pagination and page
// retries are driven by the caller.
func (s *S3) List(ctx context.Context, input *ListInput) (*ListOutput, error) {
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if input.Prefix != "" {
		listInput.SetPrefix(input.Prefix)
	}
	if input.ContinuationToken != "" {
		listInput.SetContinuationToken(input.ContinuationToken)
	}
	if input.MaxKeys > 0 {
		listInput.SetMaxKeys(input.MaxKeys)
	}

	output, err := s.api.ListObjectsV2WithContext(ctx, listInput)
	if err != nil {
		return nil, err
	}

	page := &ListOutput{}
	for _, c := range output.Contents {
		page.Objects = append(page.Objects, &Object{
			Key:          aws.StringValue(c.Key),
			Size:         aws.Int64Value(c.Size),
			LastModified: aws.TimeValue(c.LastModified),
			Etag:         aws.StringValue(c.ETag),
		})
	}

	if aws.BoolValue(output.IsTruncated) {
		page.NextContinuationToken = aws.StringValue(output.NextContinuationToken)
	}

	return page, nil
}

// Get is a download operation which fetches the object at key into any
// destination that implements io.WriterAt.
func (s *S3) Get(ctx context.Context, key string, to io.WriterAt) (int64, error) {
	n, err := s.downloader.DownloadWithContext(ctx, to, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if errHasCode(err, s3.ErrCodeNoSuchKey) || errHasCode(err, "NotFound") {
			return 0, ErrObjectNotFound
		}
		return 0, err
	}
	return n, nil
}

// Stat retrieves metadata from the object at key without returning the
// object itself.
func (s *S3) Stat(ctx context.Context, key string) (*Object, error) {
	output, err := s.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if errHasCode(err, "NotFound") || errHasCode(err, s3.ErrCodeNoSuchKey) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}

	return &Object{
		Key:          key,
		Size:         aws.Int64Value(output.ContentLength),
		LastModified: aws.TimeValue(output.LastModified),
		Etag:         aws.StringValue(output.ETag),
	}, nil
}

// Put is a multipart upload operation which uploads resources implementing
// io.Reader to key.
func (s *S3) Put(ctx context.Context, reader io.Reader, key string) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String("application/octet-stream"),
	})
	return err
}

// newAWSSession initializes a new AWS session with region fallback and
// custom options.
func newAWSSession(opts Options) (*session.Session, error) {
	newSession := func(c *aws.Config) (*session.Session, error) {
		useSharedConfig := session.SharedConfigEnable

		// Reverse of what the SDK does: if AWS_SDK_LOAD_CONFIG is 0 (or a
		// falsy value) disable shared configs.
		loadCfg := os.Getenv("AWS_SDK_LOAD_CONFIG")
		if loadCfg != "" {
			if enable, _ := strconv.ParseBool(loadCfg); !enable {
				useSharedConfig = session.SharedConfigDisable
			}
		}
		return session.NewSessionWithOptions(session.Options{
			Config:            *c,
			Profile:           opts.Profile,
			SharedConfigState: useSharedConfig,
		})
	}

	awsCfg := aws.NewConfig().WithMaxRetries(opts.MaxRetries)

	if opts.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(opts.Endpoint).WithS3ForcePathStyle(true)
	}

	if opts.NoVerifySSL {
		awsCfg = awsCfg.WithHTTPClient(&http.Client{Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}})
	}

	if opts.Region != "" {
		awsCfg = awsCfg.WithRegion(opts.Region)
		return newSession(awsCfg)
	}

	ses, err := newSession(awsCfg)
	if err != nil {
		return nil, err
	}
	if ses.Config.Region == nil || *ses.Config.Region == "" {
		// No region specified in env or config, fallback to us-east-1.
		awsCfg = awsCfg.WithRegion(endpoints.UsEast1RegionID)
		ses, err = newSession(awsCfg)
	}

	return ses, err
}

func errHasCode(err error, code string) bool {
	if code == "" || err == nil {
		return false
	}

	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		if awsErr.Code() == code {
			return true
		}
	}
	return false
}

// IsCancelationError reports whether the error was caused by request
// cancelation.
func IsCancelationError(err error) bool {
	return errHasCode(err, request.CanceledErrorCode)
}

// IsRetryableError reports whether the error is worth retrying: throttling,
// server error class responses and network timeouts. Everything else,
// not-found and access-denied included, is permanent.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case "SlowDown", "RequestTimeout", "RequestTimeoutException",
			"Throttling", "ThrottlingException", "InternalError",
			request.ErrCodeSerialization, request.ErrCodeRequestError,
			request.ErrCodeResponseTimeout:
			return true
		}

		var reqErr awserr.RequestFailure
		if errors.As(err, &reqErr) {
			status := reqErr.StatusCode()
			if status == 429 || status >= 500 {
				return true
			}
		}
	}

	return false
}
