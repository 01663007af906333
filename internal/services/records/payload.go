package records

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/asad/mediabridge/internal/config"
	"github.com/asad/mediabridge/internal/logging"
)

// PayloadStore holds the free-form JSON payload of each record, keyed by
// the record's identifier.
type PayloadStore interface {
	// Name identifies the store in logs, metrics and write outcomes.
	Name() string

	// Get returns the stored text. A missing payload is not an error:
	// found is false and err is nil.
	Get(ctx context.Context, recordID string) (value string, found bool, err error)

	// Put replaces the payload of recordID.
	Put(ctx context.Context, recordID, value string) error
}

// NewPayloadStore builds the store selected by cfg.PayloadBackend. The
// returned close function releases its connections.
func NewPayloadStore(ctx context.Context, cfg config.RecordsConfig, dataDir string, logger logging.Logger) (PayloadStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.PayloadBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			// The store stays usable; reads fail per request until redis is up.
			logger.Warn("redis not reachable at startup",
				logging.String("addr", cfg.RedisAddr),
				logging.ErrorField(err),
			)
		}
		return NewRedisPayloadStore(client, cfg.PayloadKeyPrefix), client.Close, nil

	case "s3":
		store, err := NewS3PayloadStore(ctx, S3PayloadOptions{
			Bucket:    cfg.PayloadS3Bucket,
			Endpoint:  cfg.PayloadS3Endpoint,
			Region:    cfg.PayloadS3Region,
			AccessKey: cfg.PayloadS3AccessKey,
			SecretKey: cfg.PayloadS3SecretKey,
			Prefix:    cfg.PayloadKeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil

	case "file":
		store, err := NewFilePayloadStore(filepath.Join(dataDir, "payloads"))
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil

	default:
		return nil, nil, fmt.Errorf("unsupported payload backend %q", cfg.PayloadBackend)
	}
}
