package media

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/asad/mediabridge/internal/config"
	"github.com/asad/mediabridge/internal/logging"
)

// Backend is an object store the proxy can list and stream from.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// List returns up to maxListCount objects of bucket whose names start
	// with prefix.
	List(ctx context.Context, bucket, prefix string) ([]ObjectDescriptor, error)

	// Fetch opens a GET download of one object. rangeHeader, when non-empty,
	// is sent to the backend unchanged. Non-2xx responses are returned as
	// upstream errors.
	Fetch(ctx context.Context, bucket, name, rangeHeader string) (*FetchResult, error)
}

// NewBackend builds the backend selected by cfg.Backend.
func NewBackend(ctx context.Context, cfg config.MediaConfig, client *resty.Client, logger logging.Logger) (Backend, error) {
	switch cfg.Backend {
	case "b2":
		return NewB2Backend(B2Options{
			APIURL:         cfg.B2APIURL,
			KeyID:          cfg.B2KeyID,
			ApplicationKey: cfg.B2ApplicationKey,
			LeaseTTL:       cfg.LeaseTTL,
		}, client, logger), nil
	case "s3":
		return NewS3Backend(ctx, S3Options{
			Endpoint:    cfg.S3Endpoint,
			Region:      cfg.S3Region,
			AccessKey:   cfg.S3AccessKey,
			SecretKey:   cfg.S3SecretKey,
			PublicURL:   cfg.S3PublicURL,
			IPFSGateway: cfg.IPFSGateway,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported media backend %q", cfg.Backend)
	}
}
