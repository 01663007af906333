package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/asad/mediabridge/internal/apperr"
	"github.com/asad/mediabridge/internal/httpx"
	"github.com/asad/mediabridge/internal/logging"
	"github.com/asad/mediabridge/internal/metrics"
)

// maxErrorBody caps how much of a failed download is kept for the error
// envelope.
const maxErrorBody = 64 << 10

// B2Options configures the Backblaze B2 backend.
type B2Options struct {
	APIURL         string
	KeyID          string
	ApplicationKey string
	LeaseTTL       time.Duration
}

// B2Backend talks to the Backblaze B2 native API. All calls share one
// cached authorization lease.
type B2Backend struct {
	client *resty.Client
	opts   B2Options
	leases *LeaseCache
	logger logging.Logger
}

// NewB2Backend creates a B2 backend. No network call is made until the first
// request needs the lease.
func NewB2Backend(opts B2Options, client *resty.Client, logger logging.Logger) *B2Backend {
	b := &B2Backend{
		client: client,
		opts:   opts,
		logger: logger.With(logging.String("backend", "b2")),
	}
	b.leases = NewLeaseCache(b.authorize, opts.LeaseTTL)
	return b
}

// Name returns "b2".
func (b *B2Backend) Name() string {
	return "b2"
}

type b2AuthorizeResponse struct {
	AccountID          string `json:"accountId"`
	AuthorizationToken string `json:"authorizationToken"`
	APIURL             string `json:"apiUrl"`
	DownloadURL        string `json:"downloadUrl"`
}

type b2ListBucketsRequest struct {
	AccountID  string `json:"accountId"`
	BucketName string `json:"bucketName"`
}

type b2ListBucketsResponse struct {
	Buckets []struct {
		BucketID   string `json:"bucketId"`
		BucketName string `json:"bucketName"`
	} `json:"buckets"`
}

type b2ListFileNamesRequest struct {
	BucketID     string `json:"bucketId"`
	MaxFileCount int    `json:"maxFileCount"`
	Prefix       string `json:"prefix"`
}

type b2ListFileNamesResponse struct {
	Files []struct {
		FileName        string `json:"fileName"`
		ContentLength   int64  `json:"contentLength"`
		ContentType     string `json:"contentType"`
		UploadTimestamp int64  `json:"uploadTimestamp"`
	} `json:"files"`
}

// authorize runs b2_authorize_account with the application key.
func (b *B2Backend) authorize(ctx context.Context) (*Lease, error) {
	var data b2AuthorizeResponse
	req := b.client.R().
		SetContext(ctx).
		SetBasicAuth(b.opts.KeyID, b.opts.ApplicationKey).
		SetHeader("Accept", "application/json").
		ForceContentType("application/json").
		SetResult(&data)

	resp, err := b.execute(ctx, req, http.MethodGet, b.opts.APIURL+"/b2api/v2/b2_authorize_account", "authorize")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		b.logger.Warn("b2 authorization failed", logging.Int("status", resp.StatusCode()))
		return nil, apperr.Upstream("B2 authorization failed", resp.StatusCode(), resp.String())
	}

	b.logger.Info("b2 lease acquired", logging.String("api_url", data.APIURL))
	return &Lease{
		Token:       data.AuthorizationToken,
		APIURL:      strings.TrimRight(data.APIURL, "/"),
		DownloadURL: strings.TrimRight(data.DownloadURL, "/"),
		AccountID:   data.AccountID,
	}, nil
}

// List resolves the bucket id and lists one page of file names.
func (b *B2Backend) List(ctx context.Context, bucket, prefix string) ([]ObjectDescriptor, error) {
	lease, err := b.leases.Get(ctx)
	if err != nil {
		return nil, err
	}

	var buckets b2ListBucketsResponse
	if err := b.callAPI(ctx, lease, "b2_list_buckets", b2ListBucketsRequest{
		AccountID:  lease.AccountID,
		BucketName: bucket,
	}, &buckets, "Failed to get bucket info"); err != nil {
		return nil, err
	}
	if len(buckets.Buckets) == 0 {
		return nil, apperr.NotFound("Bucket '%s' not found", bucket)
	}

	var files b2ListFileNamesResponse
	if err := b.callAPI(ctx, lease, "b2_list_file_names", b2ListFileNamesRequest{
		BucketID:     buckets.Buckets[0].BucketID,
		MaxFileCount: maxListCount,
		Prefix:       prefix,
	}, &files, "Failed to list files"); err != nil {
		return nil, err
	}

	out := make([]ObjectDescriptor, 0, len(files.Files))
	for _, f := range files.Files {
		if !strings.HasPrefix(f.FileName, prefix) {
			continue
		}
		out = append(out, ObjectDescriptor{
			Name:            f.FileName,
			Size:            f.ContentLength,
			SizeFormatted:   FormatBytes(f.ContentLength),
			ContentType:     f.ContentType,
			UploadTimestamp: f.UploadTimestamp,
			URL:             objectURL(lease.DownloadURL+"/file", bucket, f.FileName),
		})
	}
	return out, nil
}

// Fetch downloads an object by name, forwarding the Range header.
func (b *B2Backend) Fetch(ctx context.Context, bucket, name, rangeHeader string) (*FetchResult, error) {
	lease, err := b.leases.Get(ctx)
	if err != nil {
		return nil, err
	}

	downloadURL := objectURL(lease.DownloadURL+"/file", bucket, name)
	req := b.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Authorization", lease.Token).
		SetHeader("Accept-Encoding", "identity")
	if rangeHeader != "" {
		req.SetHeader("Range", rangeHeader)
	}

	resp, err := b.execute(ctx, req, http.MethodGet, downloadURL, "download")
	if err != nil {
		return nil, err
	}
	raw := resp.RawResponse
	if !httpx.IsSuccess(raw.StatusCode) {
		body := readErrorBody(raw.Body)
		b.dropLeaseOnAuthFailure(lease, raw.StatusCode)
		return nil, apperr.Upstream("Failed to fetch from B2", raw.StatusCode, body).
			With("statusText", http.StatusText(raw.StatusCode)).
			With("url", downloadURL)
	}

	return &FetchResult{
		Status:        raw.StatusCode,
		Header:        raw.Header,
		ContentLength: raw.ContentLength,
		Body:          raw.Body,
		URL:           downloadURL,
	}, nil
}

// callAPI POSTs a JSON request to a b2api/v2 operation and decodes the reply.
func (b *B2Backend) callAPI(ctx context.Context, lease *Lease, operation string, in, out any, failure string) error {
	req := b.client.R().
		SetContext(ctx).
		SetHeader("Authorization", lease.Token).
		SetHeader("Accept", "application/json").
		ForceContentType("application/json").
		SetBody(in).
		SetResult(out)

	resp, err := b.execute(ctx, req, http.MethodPost, lease.APIURL+"/b2api/v2/"+operation, operation)
	if err != nil {
		return err
	}
	if resp.IsError() {
		b.dropLeaseOnAuthFailure(lease, resp.StatusCode())
		return apperr.Upstream(failure, resp.StatusCode(), resp.String())
	}
	return nil
}

// execute sends a request and records the call. Transport failures become
// 502 upstream errors; cancellations are passed through unchanged. A reply
// that arrived but could not be decoded is an internal error.
func (b *B2Backend) execute(ctx context.Context, req *resty.Request, method, url, operation string) (*resty.Response, error) {
	start := time.Now()
	resp, err := req.Execute(method, url)
	if resp == nil || resp.RawResponse == nil {
		metrics.RecordUpstream("b2", operation, "transport_error", time.Since(start).Seconds())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Upstream("B2 request failed", http.StatusBadGateway, errString(err))
	}
	metrics.RecordUpstream("b2", operation, fmt.Sprint(resp.StatusCode()), time.Since(start).Seconds())
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("failed to decode %s response", operation), err)
	}
	return resp, nil
}

// readErrorBody drains and closes a failed download, keeping at most
// maxErrorBody bytes of it for the error envelope.
func readErrorBody(body io.ReadCloser) string {
	defer body.Close()
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return string(data)
}

func errString(err error) string {
	if err == nil {
		return "no response"
	}
	return err.Error()
}

// dropLeaseOnAuthFailure forgets a lease the backend rejected, so the next
// request re-authorizes instead of reusing a revoked token.
func (b *B2Backend) dropLeaseOnAuthFailure(lease *Lease, status int) {
	if status == http.StatusUnauthorized {
		b.logger.Warn("b2 rejected cached lease; dropping it")
		b.leases.Invalidate(lease)
	}
}
