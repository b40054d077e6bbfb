package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/pkg/logger"
)

// Store persists derived model artifacts (segment assignments, churn
// predictions, insight reports) as JSON documents. Local writes go through a
// temp file and rename, so a reader never observes a half-written artifact.
// When a bucket is configured, every save is mirrored to S3 after the local
// swap succeeds.
type Store struct {
	localPath string
	bucket    string
	s3Client  *s3.Client
}

// New creates an artifact store rooted at cfg.LocalPath. S3 mirroring is
// enabled only when cfg.S3Bucket is set.
func New(ctx context.Context, cfg config.ArtifactConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}

	s := &Store{localPath: cfg.LocalPath, bucket: cfg.S3Bucket}
	if cfg.S3Bucket != "" {
		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.S3Region),
		}
		if cfg.AWSProfile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.s3Client = s3.NewFromConfig(awsCfg)
	}
	return s, nil
}

// Save writes an artifact under category/key.json. The local write is atomic;
// a failed S3 mirror is logged but does not fail the save.
func (s *Store) Save(ctx context.Context, category, key string, data interface{}) error {
	dir := filepath.Join(s.localPath, category)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling artifact: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(key)+".json")
	tmp, err := os.CreateTemp(dir, filepath.Base(key)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if s.s3Client != nil {
		if err := s.mirrorToS3(ctx, category, key, encoded); err != nil {
			logger.Warn("S3 artifact mirror failed",
				"category", category,
				"key", key,
				"error", err.Error())
		}
	}
	return nil
}

// Load reads an artifact saved under category/key.json into out.
func (s *Store) Load(category, key string, out interface{}) error {
	path := filepath.Join(s.localPath, category, filepath.Base(key)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding artifact %s/%s: %w", category, key, err)
	}
	return nil
}

// List returns the artifact keys saved under a category, without extensions.
func (s *Store) List(category string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.localPath, category))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		keys = append(keys, name[:len(name)-len(".json")])
	}
	return keys, nil
}

func (s *Store) mirrorToS3(ctx context.Context, category, key string, data []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fmt.Sprintf("artifacts/%s/%s.json", category, filepath.Base(key))),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}
