package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"

	"github.com/asad/mediabridge/internal/apperr"
	"github.com/asad/mediabridge/internal/logging"
	"github.com/asad/mediabridge/internal/metrics"
)

// S3Options configures an S3-compatible media backend (Filebase, MinIO, AWS).
type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	// PublicURL is the base of descriptor URLs; defaults to Endpoint.
	PublicURL string
	// IPFSGateway is the host of ipfsUrl links; empty omits them.
	IPFSGateway string
}

// enrichConcurrency bounds the per-object HeadObject and ranged GetObject
// calls a listing makes.
const enrichConcurrency = 8

// s3API is the subset of *s3.Client the backend uses.
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Backend streams objects from an S3-compatible store. Requests are signed
// by the SDK, so this backend keeps no lease.
type S3Backend struct {
	client      s3API
	publicURL   string
	ipfsGateway string
	logger      logging.Logger
}

// NewS3Backend creates a path-style S3 client for the configured endpoint.
func NewS3Backend(ctx context.Context, opts S3Options, logger logging.Logger) (*S3Backend, error) {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

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
		}
		o.UsePathStyle = true
	})

	publicURL := opts.PublicURL
	if publicURL == "" {
		publicURL = opts.Endpoint
	}
	return newS3Backend(client, publicURL, opts.IPFSGateway, logger), nil
}

func newS3Backend(client s3API, publicURL, ipfsGateway string, logger logging.Logger) *S3Backend {
	ipfsGateway = strings.TrimPrefix(strings.TrimPrefix(ipfsGateway, "https://"), "http://")
	return &S3Backend{
		client:      client,
		publicURL:   strings.TrimRight(publicURL, "/"),
		ipfsGateway: strings.TrimRight(ipfsGateway, "/"),
		logger:      logger.With(logging.String("backend", "s3")),
	}
}

// Name returns "s3".
func (b *S3Backend) Name() string {
	return "s3"
}

// List returns one ListObjectsV2 page of the bucket, each object enriched
// with its IPFS CID and, for movies, its duration.
func (b *S3Backend) List(ctx context.Context, bucket, prefix string) ([]ObjectDescriptor, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(maxListCount),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	start := time.Now()
	out, err := b.client.ListObjectsV2(ctx, input)
	b.record("list_objects", err, start)
	if err != nil {
		if code := s3ErrorCode(err); code == "NoSuchBucket" {
			return nil, apperr.NotFound("Bucket '%s' not found", bucket)
		}
		return nil, s3UpstreamError("Failed to list files", err)
	}

	files := make([]ObjectDescriptor, 0, len(out.Contents))
	for _, obj := range out.Contents {
		name := aws.ToString(obj.Key)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		size := aws.ToInt64(obj.Size)
		var uploaded int64
		if obj.LastModified != nil {
			uploaded = obj.LastModified.UnixMilli()
		}
		files = append(files, ObjectDescriptor{
			Name:            name,
			Size:            size,
			SizeFormatted:   FormatBytes(size),
			ContentType:     contentTypeFor(name),
			UploadTimestamp: uploaded,
			URL:             objectURL(b.publicURL, bucket, name),
		})
	}
	b.enrich(ctx, bucket, files)
	return files, nil
}

// enrich fills the optional descriptor fields. Every lookup that fails just
// leaves its field empty.
func (b *S3Backend) enrich(ctx context.Context, bucket string, files []ObjectDescriptor) {
	var g errgroup.Group
	g.SetLimit(enrichConcurrency)
	for i := range files {
		f := &files[i]
		g.Go(func() error {
			if cid := b.objectCID(ctx, bucket, f.Name); cid != "" {
				f.CID = cid
				if b.ipfsGateway != "" {
					f.IPFSURL = "https://" + b.ipfsGateway + "/ipfs/" + cid
				}
			}
			if isMovie(f.Name) {
				if d, ok := b.objectDuration(ctx, bucket, f.Name); ok {
					f.Duration = d
				}
			}
			return nil
		})
	}
	g.Wait()
}

// objectCID reads the cid user metadata (x-amz-meta-cid) of one object.
func (b *S3Backend) objectCID(ctx context.Context, bucket, name string) string {
	start := time.Now()
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	b.record("head_object", err, start)
	if err != nil {
		b.logger.Debug("head object failed", logging.String("object", name), logging.ErrorField(err))
		return ""
	}
	for k, v := range out.Metadata {
		if strings.EqualFold(k, "cid") {
			return v
		}
	}
	return ""
}

// objectDuration reads the head of a movie and parses its mvhd box.
func (b *S3Backend) objectDuration(ctx context.Context, bucket, name string) (float64, bool) {
	start := time.Now()
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
		Range:  aws.String(fmt.Sprintf("bytes=0-%d", movieHeaderBytes-1)),
	})
	b.record("get_object_head", err, start)
	if err != nil {
		b.logger.Debug("movie header read failed", logging.String("object", name), logging.ErrorField(err))
		return 0, false
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, movieHeaderBytes))
	if err != nil {
		return 0, false
	}
	return movieDuration(data)
}

// Fetch opens a GetObject stream, forwarding the Range header.
func (b *S3Backend) Fetch(ctx context.Context, bucket, name, rangeHeader string) (*FetchResult, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	}
	if rangeHeader != "" {
		input.Range = aws.String(rangeHeader)
	}

	start := time.Now()
	out, err := b.client.GetObject(ctx, input)
	b.record("get_object", err, start)
	objURL := objectURL(b.publicURL, bucket, name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, s3UpstreamError("Failed to fetch from S3", err).With("url", objURL)
	}

	status := http.StatusOK
	if out.ContentRange != nil {
		status = http.StatusPartialContent
	}
	return &FetchResult{
		Status:        status,
		Header:        getObjectHeaders(out),
		ContentLength: contentLengthOf(out),
		Body:          out.Body,
		URL:           objURL,
	}, nil
}

func (b *S3Backend) record(operation string, err error, start time.Time) {
	status := "200"
	if err != nil {
		status = strconv.Itoa(s3StatusCode(err))
	}
	metrics.RecordUpstream("s3", operation, status, time.Since(start).Seconds())
}

// getObjectHeaders rebuilds the response headers GetObject parsed into fields.
func getObjectHeaders(out *s3.GetObjectOutput) http.Header {
	h := make(http.Header)
	set := func(key string, v *string) {
		if v != nil && *v != "" {
			h.Set(key, *v)
		}
	}
	set("Content-Type", out.ContentType)
	set("Content-Range", out.ContentRange)
	set("Accept-Ranges", out.AcceptRanges)
	set("ETag", out.ETag)
	set("Cache-Control", out.CacheControl)
	set("Content-Disposition", out.ContentDisposition)
	set("Content-Encoding", out.ContentEncoding)
	if n := contentLengthOf(out); n >= 0 {
		h.Set("Content-Length", strconv.FormatInt(n, 10))
	}
	if out.LastModified != nil {
		h.Set("Last-Modified", out.LastModified.UTC().Format(http.TimeFormat))
	}
	if h.Get("Accept-Ranges") == "" {
		h.Set("Accept-Ranges", "bytes")
	}
	return h
}

func contentLengthOf(out *s3.GetObjectOutput) int64 {
	if out.ContentLength == nil {
		return -1
	}
	return *out.ContentLength
}

// mediaTypes covers the formats the renderer consumes; Go's built-in mime
// table lacks most of them when no system mime.types is installed.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".srt":  "application/x-subrip",
	".vtt":  "text/vtt",
}

// contentTypeFor guesses a type from the extension, since S3 listings do not
// carry content types.
func contentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// s3UpstreamError maps an SDK error onto an upstream error that keeps the
// backend's HTTP status.
func s3UpstreamError(message string, err error) *apperr.Error {
	detail := err.Error()
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		detail = apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
	}
	return apperr.Upstream(message, s3StatusCode(err), detail)
}

func s3StatusCode(err error) int {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return http.StatusBadGateway
}

func s3ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
