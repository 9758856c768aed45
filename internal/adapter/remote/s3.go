package remote

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	appconfig "github.com/semmidev/arkiva/internal/config"
)

// S3Target mirrors backup set directories to an S3 bucket using AWS SDK v2.
type S3Target struct {
	client       *s3.Client
	uploader     *s3manager.Uploader
	bucket       string
	storageClass types.StorageClass
}

func NewS3(cfg *appconfig.AWSConfig) (*S3Target, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)

	return &S3Target{
		client:       client,
		uploader:     s3manager.NewUploader(client),
		bucket:       cfg.Bucket,
		storageClass: types.StorageClass(cfg.StorageClass),
	}, nil
}

func (s *S3Target) Name() string { return "s3" }

// SyncSet uploads every file of the set directory under the remote prefix.
func (s *S3Target) SyncSet(ctx context.Context, localDir string, remotePrefix string) error {
	return filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", p, err)
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		key := path.Join(remotePrefix, filepath.ToSlash(rel))

		file, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", p, err)
		}
		defer file.Close()

		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:       &s.bucket,
			Key:          &key,
			Body:         file,
			StorageClass: s.storageClass,
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s to S3: %w", key, err)
		}
		return nil
	})
}

// DeletePrefix removes everything under the remote prefix, used when
// rotation prunes a set.
func (s *S3Target) DeletePrefix(ctx context.Context, remotePrefix string) error {
	prefix := remotePrefix + "/"
	resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &prefix,
	})
	if err != nil {
		return fmt.Errorf("failed to list S3 objects: %w", err)
	}

	for _, obj := range resp.Contents {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: &s.bucket,
			Key:    obj.Key,
		})
		if err != nil {
			return fmt.Errorf("failed to delete %s from S3: %w", *obj.Key, err)
		}
	}
	return nil
}
