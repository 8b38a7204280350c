// Package s3check confirms that a freshly issued bucket is reachable with
// the credentials handed out for it.
package s3check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	ErrBucketNotFound = errors.New("bucket not found")
	ErrAccessDenied   = errors.New("access denied")
)

// Target is a bucket plus the credentials to reach it.
type Target struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// HeadBucketAPI is the part of the S3 client the checker needs.
type HeadBucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Checker issues HeadBucket requests.
type Checker struct {
	newClient func(Target) HeadBucketAPI
}

// New returns a Checker that talks to the target's endpoint.
func New() *Checker {
	return &Checker{newClient: func(t Target) HeadBucketAPI { return NewClient(t) }}
}

// NewWithClient returns a Checker that always uses api.
func NewWithClient(api HeadBucketAPI) *Checker {
	return &Checker{newClient: func(Target) HeadBucketAPI { return api }}
}

// NewClient builds an S3 client with static credentials and path-style
// addressing, which S3-compatible endpoints generally require.
func NewClient(t Target) *s3.Client {
	region := t.Region
	if region == "" || region == "auto" {
		region = "us-east-1"
	}
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     t.AccessKeyID,
			SecretAccessKey: t.SecretAccessKey,
			Source:          "launchpad",
		}, nil
	})
	cfg := aws.Config{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if t.Endpoint != "" {
			o.BaseEndpoint = aws.String(t.Endpoint)
		}
		o.UsePathStyle = true
	})
}

// CheckBucket returns nil when the bucket answers a HEAD request.
func (c *Checker) CheckBucket(ctx context.Context, t Target) error {
	if t.Bucket == "" {
		return fmt.Errorf("checking bucket: no bucket name")
	}
	slog.Debug("checking bucket", "bucket", t.Bucket, "endpoint", t.Endpoint)

	_, err := c.newClient(t).HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(t.Bucket)})
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", t.Bucket, classify(err))
	}
	return nil
}

func classify(err error) error {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %w", ErrBucketNotFound, err)
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		switch re.HTTPStatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrBucketNotFound, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		}
	}
	return err
}
