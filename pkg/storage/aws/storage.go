package aws

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sgl-project/ome-mtl/pkg/logging"
	"github.com/sgl-project/ome-mtl/pkg/storage"
)

// ConfigKey is the viper key holding the S3 configuration.
const ConfigKey = "storage.s3"

type s3Client interface {
	manager.DownloadAPIClient
	s3.ListObjectsV2APIClient
}

// S3Storage stages checkpoint prefixes from S3 onto local disk.
type S3Storage struct {
	client     s3Client
	downloader *manager.Downloader
	logger     logging.Interface
	config     *Config
}

// Config represents S3 storage configuration
type Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required_with=AccessKeyID"`
	SessionToken    string `mapstructure:"session_token"`
	PartSize        int64  `mapstructure:"part_size" validate:"gte=0"`
	Concurrency     int    `mapstructure:"concurrency" validate:"gte=0"`
}

// DefaultConfig returns default S3 storage configuration
func DefaultConfig() *Config {
	return &Config{
		PartSize:    5 * 1024 * 1024,
		Concurrency: 10,
	}
}

// NewConfig reads the "storage.s3" key on top of the defaults.
func NewConfig(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if v != nil && v.IsSet(ConfigKey) {
		if err := v.UnmarshalKey(ConfigKey, cfg); err != nil {
			return nil, fmt.Errorf("error unmarshalling %s: %w", ConfigKey, err)
		}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", ConfigKey, err)
	}
	return cfg, nil
}

// New creates an S3Storage from the default AWS credential chain, or from the
// static keys in cfg when present.
func New(ctx context.Context, cfg *Config, logger logging.Interface) (*S3Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	awsConfig, err := createAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return newWithClient(client, cfg, logger), nil
}

func newWithClient(client s3Client, cfg *Config, logger logging.Interface) *S3Storage {
	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		if cfg.PartSize > 0 {
			d.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			d.Concurrency = cfg.Concurrency
		}
	})
	return &S3Storage{
		client:     client,
		downloader: downloader,
		logger:     logger,
		config:     cfg,
	}
}

func createAWSConfig(ctx context.Context, cfg *Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

// Provider returns the storage provider type
func (s *S3Storage) Provider() storage.Provider {
	return storage.ProviderAWS
}

// List returns the object keys under the URI prefix.
func (s *S3Storage) List(ctx context.Context, uri storage.ObjectURI) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(uri.BucketName),
	}
	if uri.Prefix != "" {
		input.Prefix = aws.String(strings.TrimSuffix(uri.Prefix, "/") + "/")
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		resp, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range resp.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			keys = append(keys, *obj.Key)
		}
	}
	return keys, nil
}

// DownloadPrefix mirrors every object under uri into targetDir, keeping the
// key layout relative to the prefix. It returns the local paths written.
func (s *S3Storage) DownloadPrefix(ctx context.Context, uri storage.ObjectURI, targetDir string) ([]string, error) {
	if uri.Provider != storage.ProviderAWS {
		return nil, fmt.Errorf("not an S3 location: %s", uri.String())
	}

	keys, err := s.List(ctx, uri)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no objects found under %s", uri.String())
	}

	prefix := ""
	if uri.Prefix != "" {
		prefix = strings.TrimSuffix(uri.Prefix, "/") + "/"
	}

	paths := make([]string, 0, len(keys))
	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		target := filepath.Join(targetDir, filepath.FromSlash(rel))
		if !strings.HasPrefix(target, filepath.Clean(targetDir)+string(os.PathSeparator)) {
			return nil, fmt.Errorf("object key %q escapes %s", key, targetDir)
		}
		if err := s.downloadObject(ctx, uri.BucketName, key, target); err != nil {
			return nil, err
		}
		paths = append(paths, target)
	}

	s.logger.
		WithField("source", uri.String()).
		WithField("target", targetDir).
		WithField("objects", len(paths)).
		Info("Staged objects from S3")
	return paths, nil
}

func (s *S3Storage) downloadObject(ctx context.Context, bucket, key, target string) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	n, err := s.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	s.logger.WithField("key", key).WithField("bytes", n).Debug("Downloaded object")
	return nil
}
