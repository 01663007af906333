package records

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/asad/mediabridge/internal/apperr"
	"github.com/asad/mediabridge/internal/metrics"
)

// S3PayloadOptions configures the S3 payload store.
type S3PayloadOptions struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

type s3ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3PayloadStore keeps each payload as one JSON object, <prefix><id>.json.
type S3PayloadStore struct {
	client s3ObjectAPI
	bucket string
	prefix string
}

// NewS3PayloadStore builds an SDK client for the payload bucket. A custom
// endpoint switches to path-style addressing.
func NewS3PayloadStore(ctx context.Context, opts S3PayloadOptions) (*S3PayloadStore, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3PayloadStore(client, opts.Bucket, opts.Prefix), nil
}

func newS3PayloadStore(client s3ObjectAPI, bucket, prefix string) *S3PayloadStore {
	return &S3PayloadStore{client: client, bucket: bucket, prefix: prefix}
}

// Name returns "s3".
func (s *S3PayloadStore) Name() string {
	return "s3"
}

func (s *S3PayloadStore) key(recordID string) string {
	return s.prefix + recordID + ".json"
}

// Get reads one payload object. NoSuchKey and 404 count as a miss.
func (s *S3PayloadStore) Get(ctx context.Context, recordID string) (string, bool, error) {
	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(recordID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) || statusOf(err) == http.StatusNotFound {
			metrics.RecordUpstream("s3", "get_payload", "miss", time.Since(start).Seconds())
			return "", false, nil
		}
		metrics.RecordUpstream("s3", "get_payload", strconv.Itoa(statusOf(err)), time.Since(start).Seconds())
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", false, payloadS3Error("Failed to read payload", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", false, apperr.Upstream("Failed to read payload", http.StatusBadGateway, err.Error())
	}
	metrics.RecordUpstream("s3", "get_payload", "200", time.Since(start).Seconds())
	return string(data), true, nil
}

// Put writes the payload as application/json.
func (s *S3PayloadStore) Put(ctx context.Context, recordID, value string) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(recordID)),
		Body:        strings.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		metrics.RecordUpstream("s3", "put_payload", strconv.Itoa(statusOf(err)), time.Since(start).Seconds())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return payloadS3Error("Failed to write payload", err)
	}
	metrics.RecordUpstream("s3", "put_payload", "200", time.Since(start).Seconds())
	return nil
}

func payloadS3Error(message string, err error) *apperr.Error {
	detail := err.Error()
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		detail = apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
	}
	return apperr.Upstream(message, statusOf(err), detail)
}

func statusOf(err error) int {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return http.StatusBadGateway
}

var _ PayloadStore = (*S3PayloadStore)(nil)
