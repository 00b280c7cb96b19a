package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/davfs/internal/logger"
	"github.com/marmos91/davfs/pkg/lock"
	lockbadger "github.com/marmos91/davfs/pkg/lock/badger"
	lockmemory "github.com/marmos91/davfs/pkg/lock/memory"
	locknoop "github.com/marmos91/davfs/pkg/lock/noop"
	"github.com/marmos91/davfs/pkg/storage"
	"github.com/marmos91/davfs/pkg/storage/localfs"
	storagememory "github.com/marmos91/davfs/pkg/storage/memory"
	storages3 "github.com/marmos91/davfs/pkg/storage/s3"
)

// CreateStorage creates a storage backend based on configuration.
//
// This factory uses the Type field to select the backend, decodes the
// type-specific section from the corresponding map, and passes it to the
// backend's constructor.
//
// Supported types:
//   - "memory": in-memory tree, data lost on restart
//   - "localfs": a directory on the local filesystem
//   - "s3": Amazon S3 or a compatible object store
func CreateStorage(ctx context.Context, cfg *StorageConfig) (storage.FileSystem, error) {
	switch cfg.Type {
	case "memory":
		return storagememory.New(), nil
	case "localfs":
		return createLocalfsStorage(cfg.Localfs)
	case "s3":
		return createS3Storage(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}

// createLocalfsStorage creates a backend rooted at a local directory.
func createLocalfsStorage(options map[string]any) (storage.FileSystem, error) {
	var fsCfg struct {
		Path string `mapstructure:"path"`
	}
	if err := mapstructure.Decode(options, &fsCfg); err != nil {
		return nil, fmt.Errorf("invalid localfs config: %w", err)
	}
	if fsCfg.Path == "" {
		return nil, fmt.Errorf("localfs path is required")
	}

	fs, err := localfs.New(fsCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize localfs backend: %w", err)
	}

	logger.Info("localfs storage initialized: path=%s", fsCfg.Path)
	return fs, nil
}

// createS3Storage creates an S3-backed storage backend.
func createS3Storage(ctx context.Context, options map[string]any) (storage.FileSystem, error) {
	var s3Cfg struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}
	if err := mapstructure.Decode(options, &s3Cfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 storage config: %w", err)
	}
	if s3Cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 storage: bucket is required")
	}
	if s3Cfg.Region == "" {
		return nil, fmt.Errorf("S3 storage: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(s3Cfg.Region))

	// custom endpoint supports MinIO, Localstack and friends
	if s3Cfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck
				return aws.Endpoint{
					URL:               s3Cfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// static credentials when provided, default chain otherwise
	if s3Cfg.AccessKeyID != "" && s3Cfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			s3Cfg.AccessKeyID,
			s3Cfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := s3Cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		// path-style addressing for MinIO/Localstack compatibility
		if s3Cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	fs, err := storages3.New(storages3.Config{
		Client:    client,
		Bucket:    s3Cfg.Bucket,
		KeyPrefix: s3Cfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 storage backend: %w", err)
	}

	logger.Info("S3 storage initialized: bucket=%s, region=%s, prefix=%s",
		s3Cfg.Bucket, s3Cfg.Region, s3Cfg.KeyPrefix)

	return fs, nil
}

// CreateLockRegistry creates a lock registry based on configuration.
//
// Supported types:
//   - "memory": in-process registry, leases lost on restart
//   - "badger": persistent registry, leases survive restarts
//   - "none": locking disabled; LOCK hands out tokens but never blocks
func CreateLockRegistry(cfg *LocksConfig) (lock.Registry, error) {
	switch cfg.Type {
	case "memory":
		return lockmemory.New(), nil
	case "badger":
		return createBadgerRegistry(cfg.Badger)
	case "none":
		return locknoop.New(), nil
	default:
		return nil, fmt.Errorf("unknown lock registry type: %q", cfg.Type)
	}
}

// createBadgerRegistry creates the persistent lock registry.
func createBadgerRegistry(options map[string]any) (lock.Registry, error) {
	var badgerCfg struct {
		Path          string        `mapstructure:"path"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	}
	if err := mapstructure.Decode(options, &badgerCfg); err != nil {
		return nil, fmt.Errorf("invalid badger config: %w", err)
	}
	if badgerCfg.Path == "" {
		return nil, fmt.Errorf("badger path is required")
	}
	if badgerCfg.SweepInterval == 0 {
		badgerCfg.SweepInterval = time.Minute
	}

	reg, err := lockbadger.New(lockbadger.Config{
		Path:          badgerCfg.Path,
		SweepInterval: badgerCfg.SweepInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open lock database: %w", err)
	}

	logger.Info("badger lock registry initialized: path=%s", badgerCfg.Path)
	return reg, nil
}
