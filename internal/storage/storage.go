// Package storage delivers cleaned videos to their final destination: a
// local output directory by default, or an S3-compatible bucket when one is
// configured. The deliverer returns the URL (or path) recorded on the task
// and served to callers.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"subclean/internal/config"
	"subclean/internal/fileutil"
	"subclean/internal/logging"
)

// Deliverer moves a finished output file to its destination and returns the
// URL or path clients should use to fetch it.
type Deliverer interface {
	Deliver(ctx context.Context, localPath, name string) (string, error)
}

// NewDeliverer selects local or S3 delivery based on configuration.
func NewDeliverer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Deliverer, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if strings.TrimSpace(cfg.Storage.Bucket) == "" {
		return &localDeliverer{
			outputDir: cfg.Paths.OutputDir,
			logger:    logger.With(logging.String(logging.FieldComponent, "storage")),
		}, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region := strings.TrimSpace(cfg.Storage.Region); region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Storage.EndpointURL); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.Storage.ForcePathStyle
	})

	return &s3Deliverer{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		cfg:      cfg.Storage,
		logger:   logger.With(logging.String(logging.FieldComponent, "storage")),
	}, nil
}

// localDeliverer moves outputs into the configured output directory.
type localDeliverer struct {
	outputDir string
	logger    *slog.Logger
}

func (d *localDeliverer) Deliver(_ context.Context, localPath, name string) (string, error) {
	if err := os.MkdirAll(d.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure output dir: %w", err)
	}
	target := filepath.Join(d.outputDir, name)
	if err := fileutil.MoveFile(localPath, target); err != nil {
		return "", fmt.Errorf("move output: %w", err)
	}
	d.logger.Info("output delivered locally", logging.String("path", target))
	return target, nil
}

// s3Deliverer uploads outputs and removes the local copy on success.
type s3Deliverer struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	cfg      config.Storage
	logger   *slog.Logger
}

func (d *s3Deliverer) Deliver(ctx context.Context, localPath, name string) (string, error) {
	key := ObjectKey(d.cfg.Prefix, name)

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer file.Close()

	_, err = d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.cfg.Bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	objectURL, err := d.objectURL(ctx, key)
	if err != nil {
		return "", err
	}

	// The bucket copy is authoritative once the upload succeeds.
	file.Close()
	if err := os.Remove(localPath); err != nil {
		d.logger.Warn("could not remove local output after upload",
			logging.String("path", localPath), logging.Error(err))
	}

	d.logger.Info("output uploaded",
		logging.String("bucket", d.cfg.Bucket),
		logging.String("key", key))
	return objectURL, nil
}

func (d *s3Deliverer) objectURL(ctx context.Context, key string) (string, error) {
	if d.cfg.PresignSeconds > 0 {
		req, err := d.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(d.cfg.Bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(time.Duration(d.cfg.PresignSeconds)*time.Second))
		if err != nil {
			return "", fmt.Errorf("presign object: %w", err)
		}
		return req.URL, nil
	}
	return PublicURL(d.cfg, key)
}

// ObjectKey joins the configured prefix and object name with single slashes.
func ObjectKey(prefix, name string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// PublicURL builds a non-presigned object URL: the configured public base
// URL when present, a custom endpoint next, and virtual-hosted AWS form
// otherwise.
func PublicURL(cfg config.Storage, key string) (string, error) {
	if base := strings.TrimSpace(cfg.PublicBaseURL); base != "" {
		return joinURL(base, key)
	}
	if endpoint := strings.TrimSpace(cfg.EndpointURL); endpoint != "" {
		if cfg.ForcePathStyle {
			return joinURL(endpoint, cfg.Bucket+"/"+key)
		}
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return "", fmt.Errorf("parse endpoint url: %w", err)
		}
		parsed.Host = cfg.Bucket + "." + parsed.Host
		return joinURL(parsed.String(), key)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, region, key), nil
}

func joinURL(base, suffix string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	parsed.Path = path.Join(parsed.Path, suffix)
	return parsed.String(), nil
}
