package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"paper-kb/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// NewS3Client erstellt einen S3-Client für einen S3-kompatiblen Endpunkt.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3URL,
				SigningRegion:     cfg.S3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// ObjectStore ist der Teil des S3-Clients, den Archiv und Backup brauchen.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// ArtifactArchive spiegelt Markdown-Artefakte unter prefix in einen Bucket.
// Liegt ein Artefakt unterhalb von Root, bleibt sein relativer Pfad im Schlüssel erhalten.
type ArtifactArchive struct {
	Client ObjectStore
	Bucket string
	Prefix string
	Root   string
	Logger *zap.Logger
}

func NewArtifactArchive(client ObjectStore, bucket string, logger *zap.Logger) *ArtifactArchive {
	return &ArtifactArchive{Client: client, Bucket: bucket, Prefix: "artifacts/", Logger: logger}
}

// Key liefert den Objektschlüssel eines Artefakts.
func (a *ArtifactArchive) Key(path string) string {
	if a.Root != "" {
		rel, err := filepath.Rel(a.Root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return a.Prefix + filepath.ToSlash(rel)
		}
	}
	return a.Prefix + filepath.Base(path)
}

// ArchiveArtifact lädt die Datei hoch.
func (a *ArtifactArchive) ArchiveArtifact(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	key := a.Key(path)
	if err := UploadFile(ctx, a.Client, a.Bucket, key, data); err != nil {
		return fmt.Errorf("fehler beim Hochladen von %s: %w", key, err)
	}
	a.Logger.Debug("Artefakt archiviert", zap.String("bucket", a.Bucket), zap.String("key", key))
	return nil
}

// UploadFile lädt Daten unter key in den Bucket.
func UploadFile(ctx context.Context, client ObjectStore, bucket, key string, data []byte) error {
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

// RotateObjects behält die keep neuesten Objekte unter prefix und löscht den Rest.
// Liefert die gelöschten Schlüssel.
func RotateObjects(ctx context.Context, client ObjectStore, bucket, prefix string, keep int, logger *zap.Logger) ([]string, error) {
	output, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, err
	}

	objects := output.Contents
	if len(objects) <= keep {
		logger.Info("Keine Rotation nötig", zap.Int("objects", len(objects)), zap.Int("keep", keep))
		return nil, nil
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(*objects[j].LastModified)
	})

	var deleted []string
	for _, obj := range objects[keep:] {
		key := aws.ToString(obj.Key)
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		logger.Info("Lösche altes Backup", zap.String("key", key))
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    obj.Key,
		}); err != nil {
			logger.Error("Fehler beim Löschen", zap.String("key", key), zap.Error(err))
			continue
		}
		deleted = append(deleted, key)
	}
	return deleted, nil
}
