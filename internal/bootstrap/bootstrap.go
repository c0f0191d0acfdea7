// Package bootstrap provides dependency initialization for the video
// generation service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/maauso/vidgen/internal/config"
	"github.com/maauso/vidgen/internal/events"
	"github.com/maauso/vidgen/internal/generator"
	"github.com/maauso/vidgen/internal/job"
	"github.com/maauso/vidgen/internal/kie"
	"github.com/maauso/vidgen/internal/notify"
	"github.com/maauso/vidgen/internal/pipeline"
	"github.com/maauso/vidgen/internal/poller"
	"github.com/maauso/vidgen/internal/storage"
	"github.com/maauso/vidgen/internal/upload"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Service *job.Service
	Events  *events.Hub
	Temp    *storage.LocalStorage

	closers []func() error
}

// Close releases broker and store connections.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Events: events.NewHub()}

	// Initialize temp storage for inline images
	temp, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	deps.Temp = temp
	logger.Info("local storage configured",
		slog.String("temp_dir", temp.TempDir()),
	)

	// Initialize provider client
	endpoints, err := cfg.Endpoints()
	if err != nil {
		return nil, err
	}
	client, err := kie.NewClient(cfg.KIEAPIKey,
		kie.WithBaseURL(cfg.KIEBaseURL),
		kie.WithTimeout(cfg.RequestTimeout),
		kie.WithEndpoints(endpoints),
	)
	if err != nil {
		return nil, fmt.Errorf("create provider client: %w", err)
	}

	// Initialize upload adapter
	sink, err := initSink(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	resolver := upload.NewAdapter(temp, sink,
		upload.WithDelay(cfg.UploadDelay),
		upload.WithLogger(logger),
	)

	router := generator.NewRouter(generator.WithDefaultCallbackURL(cfg.CallbackURL))
	pl := poller.New(client,
		poller.WithInterval(cfg.PollInterval),
		poller.WithMaxAttempts(cfg.MaxPollAttempts),
		poller.WithLogger(logger),
	)

	// Initialize generation repository
	repo, err := deps.initRepository(ctx, cfg, logger)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}

	opts := []job.ServiceOption{
		job.WithTempStore(temp),
		job.WithBroadcaster(deps.Events),
		job.WithLogger(logger),
	}

	// Initialize completion events
	if cfg.EventsEnabled() {
		publisher, err := notify.Dial(cfg.AMQPURL, cfg.AMQPExchange, notify.WithLogger(logger))
		if err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("create event publisher: %w", err)
		}
		deps.closers = append(deps.closers, publisher.Close)
		opts = append(opts, job.WithNotifier(publisher))
		logger.Info("completion events configured",
			slog.String("exchange", cfg.AMQPExchange),
		)
	}

	newRunner := func(onProgress func(generator.State)) job.Runner {
		return pipeline.New(router, client, pl,
			pipeline.WithResolver(resolver),
			pipeline.WithLogger(logger),
			pipeline.OnProgress(onProgress),
		)
	}
	deps.Service = job.NewService(repo, router, newRunner, opts...)

	return deps, nil
}

// initSink creates the upload sink selected by UPLOAD_BACKEND.
func initSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (upload.Sink, error) {
	if strings.EqualFold(cfg.UploadBackend, config.UploadBackendS3) {
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 upload configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return upload.NewObjectSink(s3Store, cfg.UploadPath), nil
	}

	sink, err := upload.NewKIESink(cfg.KIEAPIKey,
		upload.WithBaseURL(cfg.UploadBaseURL),
		upload.WithUploadPath(cfg.UploadPath),
		upload.WithTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create upload sink: %w", err)
	}
	logger.Info("provider upload configured",
		slog.String("base_url", cfg.UploadBaseURL),
		slog.String("upload_path", cfg.UploadPath),
	)
	return sink, nil
}

// initRepository selects Redis when REDIS_ADDR is set, memory otherwise.
func (d *Dependencies) initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (job.Repository, error) {
	if !cfg.RedisEnabled() {
		logger.Info("in-memory generation store configured")
		return job.NewMemoryRepository(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	d.closers = append(d.closers, client.Close)

	logger.Info("redis generation store configured",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
		slog.Duration("ttl", cfg.RecordTTL),
	)
	return job.NewRedisRepository(client, job.WithTTL(cfg.RecordTTL)), nil
}
