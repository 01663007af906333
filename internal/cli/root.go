package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/asad/mediabridge/internal/config"
	"github.com/asad/mediabridge/internal/core"
	"github.com/asad/mediabridge/internal/httpx"
	"github.com/asad/mediabridge/internal/logging"
	"github.com/asad/mediabridge/internal/services/media"
	"github.com/asad/mediabridge/internal/services/records"
)

var (
	// Version is set at build time via ldflags.
	// Example: go build -ldflags "-X github.com/asad/mediabridge/internal/cli.Version=1.0.0"
	Version = "dev"

	envFiles []string
)

const shutdownTimeout = 15 * time.Second

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mediabridge",
	Short: "Media fetch proxy and record/payload bridge",
	Long: `Mediabridge runs two small HTTP services for a media pipeline.

The media service proxies object storage (Backblaze B2 or any S3-compatible
store): it lists buckets and streams objects with Range support.

The records service joins a Notion database holding record metadata with a
payload store (Redis, S3 or local files) holding each record's JSON document.`,
	SilenceUsage: true,
}

// startCmd represents the start command.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the enabled services",
	Long: `Start every service listed in ENABLED_SERVICES, each on its own port.
The process exits after SIGINT or SIGTERM once in-flight requests finish.`,
	RunE: runStart,
}

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mediabridge version %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env, .env.local)")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute is the entry point for the CLI. It should be called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runStart builds the enabled services and serves them until a signal arrives.
func runStart(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadEnv(envFiles...)
	if err != nil {
		return err
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting mediabridge",
		logging.String("version", Version),
		logging.Strings("services", cfg.EnabledServices),
		logging.Strings("env_files", loaded),
		logging.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, cleanup, err := buildServices(ctx, cfg, httpx.NewRESTClient(httpx.NewClient(), logger), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return serve(ctx, cfg, registry, logger)
}

// buildServices constructs every enabled service with its backends. The
// returned cleanup releases backend connections.
func buildServices(ctx context.Context, cfg *config.Config, client *resty.Client, logger logging.Logger) (*core.Registry, func(), error) {
	registry := core.NewRegistry()
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("failed to release backend", logging.ErrorField(err))
			}
		}
	}

	if cfg.IsServiceEnabled(config.ServiceMedia) {
		backend, err := media.NewBackend(ctx, cfg.Media, client, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize media backend: %w", err)
		}
		registry.Register(media.NewMediaService(backend, logger))
		logger.Info("media service configured", logging.String("backend", backend.Name()))
	}

	if cfg.IsServiceEnabled(config.ServiceRecords) {
		payloads, closeFn, err := records.NewPayloadStore(ctx, cfg.Records, cfg.DataDir, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize payload store: %w", err)
		}
		closers = append(closers, closeFn)

		notion := records.NewNotionClient(records.NotionOptions{
			APIURL:     cfg.Records.NotionAPIURL,
			Token:      cfg.Records.NotionToken,
			DatabaseID: cfg.Records.NotionDatabaseID,
		}, client, logger)
		bridge := records.NewBridge(notion, payloads, cfg.Records.PageSize, logger.With(logging.String("component", "bridge")))
		registry.Register(records.NewRecordsService(bridge, logger))
		logger.Info("records service configured", logging.String("payload_store", payloads.Name()))
	}

	return registry, cleanup, nil
}

// serve runs one listener per registered service. The first listener error
// or ctx cancellation shuts all of them down gracefully.
func serve(ctx context.Context, cfg *config.Config, registry *core.Registry, logger logging.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, svc := range registry.Services() {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.PortFor(svc.Name())),
			Handler:           httpx.NewServiceRouter(svc, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		name := svc.Name()

		g.Go(func() error {
			logger.Info("listening", logging.String("service", name), logging.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server error: %w", name, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("shutdown incomplete", logging.String("service", name), logging.ErrorField(err))
			}
			return nil
		})
	}

	err := g.Wait()
	logger.Info("mediabridge stopped")
	return err
}
