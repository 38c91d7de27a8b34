package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"gcodeview/pkg/config"
	"gcodeview/pkg/errors"
	"gcodeview/pkg/model"
)

// ObjectGetter is the part of the S3 client used to fetch objects.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 reads s3://bucket/key objects.
type S3 struct {
	client ObjectGetter
}

// NewS3 builds a client from settings. Without static keys the default AWS
// credential chain is used.
func NewS3(ctx context.Context, s config.S3Settings) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(s.Region),
	}
	if s.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.SourceError("s3://", fmt.Errorf("load AWS config: %w", err))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
		}
		o.UsePathStyle = s.PathStyle
	})
	return &S3{client: client}, nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client ObjectGetter) *S3 {
	return &S3{client: client}
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 uri: %s", uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("missing object key: %s", uri)
	}
	return u.Host, key, nil
}

// Read fetches the object at uri and splits it into lines.
func (c *S3) Read(ctx context.Context, uri string) ([]model.Line, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, errors.SourceError(uri, err)
	}
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.SourceError(uri, err)
	}
	defer out.Body.Close()

	lines, err := ReadLines(out.Body, aws.ToInt64(out.ContentLength))
	if err != nil {
		return nil, errors.SourceError(uri, err)
	}
	return lines, nil
}
