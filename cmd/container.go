// cmd/container.go
//
// Composition root. Owns the broker connection, the snapshot backend and
// the job pipeline built on them.
package main

import (
	"context"
	"errors"

	"github.com/Abraxas-365/profilejobs/pkg/analysis"
	"github.com/Abraxas-365/profilejobs/pkg/config"
	"github.com/Abraxas-365/profilejobs/pkg/errx"
	"github.com/Abraxas-365/profilejobs/pkg/fsx"
	"github.com/Abraxas-365/profilejobs/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/profilejobs/pkg/fsx/fsxs3"
	"github.com/Abraxas-365/profilejobs/pkg/jobx"
	"github.com/Abraxas-365/profilejobs/pkg/jobx/jobxprom"
	"github.com/Abraxas-365/profilejobs/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/profilejobs/pkg/logx"
	"github.com/Abraxas-365/profilejobs/pkg/profile"
	"github.com/Abraxas-365/profilejobs/pkg/snapshot"
	"github.com/Abraxas-365/profilejobs/pkg/snapshot/snapshotfs"
	"github.com/Abraxas-365/profilejobs/pkg/snapshot/snapshotpg"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "profilejobs"

// Container holds shared infrastructure and the composed pipeline.
type Container struct {
	Config *config.Config

	// Infrastructure
	Connection *jobxredis.Connection
	Queue      *jobxredis.RedisQueue
	DB         *sqlx.DB
	FileSystem fsx.FileSystem
	S3Client   *s3.Client
	Registry   *prometheus.Registry

	// Pipeline
	Snapshots snapshot.Store
	Fetcher   profile.Fetcher
	Processor *analysis.Processor
	Metrics   *jobxprom.Metrics
	Submitter *jobx.Submitter
	Pool      *jobx.Pool

	unobserve func()
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}
	if err := c.initInfrastructure(ctx); err != nil {
		c.Cleanup(context.Background())
		return nil, err
	}
	if err := c.initPipeline(); err != nil {
		c.Cleanup(context.Background())
		return nil, err
	}

	logx.Info("✅ Application container initialized")
	return c, nil
}

// ---------------------------------------------------------------------------
// Infrastructure: broker, snapshot storage, metrics registry
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure(ctx context.Context) error {
	logx.Info("🏗️ Initializing infrastructure...")

	// 1. Broker. The connection loop dials in the background; a broker
	// that is down at startup is a degraded state, not an error.
	c.Connection = jobxredis.NewConnection(
		c.Config.Redis.ConnectionConfig(),
		c.Config.Redis.ConnectionOptions()...,
	)
	c.Queue = jobxredis.NewRedisQueue(c.Connection.Client(), jobxredis.WithKeyPrefix(c.Config.Redis.KeyPrefix))
	logx.Infof("  ✅ Broker connection started (%s:%d)", c.Config.Redis.Host, c.Config.Redis.Port)

	// 2. Snapshot storage
	if err := c.initSnapshotStore(ctx); err != nil {
		return err
	}

	// 3. Metrics
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		jobxprom.NewQueueCollector(c.Queue, metricsNamespace),
	)
	c.Metrics = jobxprom.New(c.Registry, metricsNamespace)
	c.unobserve = c.Metrics.ObserveState(c.Connection)

	logx.Info("✅ Infrastructure initialized")
	return nil
}

func (c *Container) initSnapshotStore(ctx context.Context) error {
	cfg := c.Config.Snapshot

	switch cfg.Backend {
	case config.BackendS3:
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return errx.Wrapf(err, errx.TypeExternal, "load AWS config for region %s", cfg.AWSRegion)
		}
		c.S3Client = s3.NewFromConfig(awsCfg)
		c.FileSystem = fsxs3.NewS3FileSystem(c.S3Client, cfg.AWSBucket, cfg.S3Prefix)
		c.Snapshots = snapshotfs.New(c.FileSystem)
		logx.Infof("  ✅ S3 snapshot store configured (bucket: %s, region: %s)", cfg.AWSBucket, cfg.AWSRegion)

	case config.BackendPostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DatabaseURL)
		if err != nil {
			return errx.Wrap(err, "connect snapshot database", errx.TypeExternal)
		}
		c.DB = db
		c.Snapshots = snapshotpg.NewPostgresStore(db)
		logx.Info("  ✅ Postgres snapshot store configured")

	default:
		localFS, err := fsxlocal.NewLocalFileSystem(cfg.Dir)
		if err != nil {
			return errx.Wrap(err, "open snapshot directory", errx.TypeInternal)
		}
		c.FileSystem = localFS
		c.Snapshots = snapshotfs.New(localFS)
		logx.Infof("  ✅ Local snapshot store configured (path: %s)", localFS.GetBasePath())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Pipeline: fetch, analyse, persist; submitted durably or inline
// ---------------------------------------------------------------------------

func (c *Container) initPipeline() error {
	logx.Info("📦 Initializing job pipeline...")

	policy, err := c.Config.Jobx.RetryPolicy()
	if err != nil {
		return err
	}

	c.Fetcher = profile.NewHTTPFetcher(
		profile.WithBaseURL(c.Config.Profile.BaseURL),
		profile.WithToken(c.Config.Profile.Token),
		profile.WithTimeout(c.Config.Profile.Timeout),
		profile.WithRateLimit(c.Config.Profile.RatePerSecond, c.Config.Profile.Burst),
	)
	c.Processor = analysis.NewProcessor(c.Fetcher, c.Snapshots)

	events := jobx.MultiHandler{jobx.LogHandler{}, c.Metrics}

	inline := jobx.NewInlineExecutor(c.Processor,
		jobx.WithInlineTimeout(c.Config.Jobx.JobTimeout),
		jobx.WithInlineEvents(events),
	)
	c.Submitter = jobx.NewSubmitter(c.Connection, jobx.NewDurableExecutor(c.Queue), inline,
		jobx.WithRetryPolicy(policy),
	)

	poolOpts := append(c.Config.Jobx.PoolOptions(),
		jobx.WithEventHandler(events),
		jobx.WithConnection(c.Connection),
	)
	c.Pool = jobx.NewPool(c.Queue, c.Processor, poolOpts...)
	if err := jobxprom.RegisterInFlight(c.Registry, metricsNamespace, c.Pool.InFlight); err != nil {
		return err
	}

	logx.Info("  ✅ Submitter and worker pool ready")
	return nil
}

// CheckStorage verifies the snapshot backend is reachable.
func (c *Container) CheckStorage(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.PingContext(ctx)
	}
	if c.FileSystem != nil {
		_, err := c.FileSystem.Exists(ctx, ".health-check")
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// CloseInline waits for inline work started by the submitter.
func (c *Container) CloseInline(ctx context.Context) error {
	if c.Submitter == nil {
		return nil
	}
	return c.Submitter.Close(ctx)
}

// Cleanup releases infrastructure. Safe on a partially built container.
func (c *Container) Cleanup(ctx context.Context) error {
	logx.Info("🧹 Cleaning up resources...")

	var errs []error
	if c.unobserve != nil {
		c.unobserve()
	}
	if c.Connection != nil {
		if err := c.Connection.Close(); err != nil {
			logx.Errorf("Error closing broker connection: %v", err)
			errs = append(errs, err)
		} else {
			logx.Info("  ✅ Broker connection closed")
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
			errs = append(errs, err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
	return errors.Join(errs...)
}
