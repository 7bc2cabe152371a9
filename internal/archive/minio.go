// Package archive stores finished scan reports in object storage. The
// archive is opt-in; scans never depend on it.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/therickybobbeh/depscan/internal/model"
)

type MinioArchive struct {
	client     *minio.Client
	bucketName string
}

// NewMinioArchive connects to the object store and ensures the bucket
// exists.
func NewMinioArchive(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinioArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize object storage client: %w", err)
	}
	a := &MinioArchive{client: client, bucketName: bucketName}
	if err := a.ensureBucketExists(context.Background()); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *MinioArchive) ensureBucketExists(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucketName)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucketName, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucketName, err)
	}
	return nil
}

// ArchiveReport serializes a finished report and uploads it under
// reports/<job-id>/report.json. Returns the object key.
func (a *MinioArchive) ArchiveReport(ctx context.Context, report *model.Report) (string, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	objectKey := fmt.Sprintf("reports/%s/report.json", report.JobID)
	_, err = a.client.PutObject(ctx, a.bucketName, objectKey, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"job-id":       report.JobID,
			"generated-at": report.Meta.GeneratedAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}
	slog.Info("report saved to object storage",
		"object_key", objectKey,
		"job_id", report.JobID,
		"size_bytes", len(payload))
	return objectKey, nil
}

// ObjectKey returns the key a job's report would be stored under.
func (a *MinioArchive) ObjectKey(jobID string) string {
	return fmt.Sprintf("reports/%s/report.json", jobID)
}

// GetReport downloads an archived report.
func (a *MinioArchive) GetReport(ctx context.Context, jobID string) (*model.Report, error) {
	obj, err := a.client.GetObject(ctx, a.bucketName, a.ObjectKey(jobID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch archived report: %w", err)
	}
	defer obj.Close()
	var report model.Report
	if err := json.NewDecoder(obj).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode archived report: %w", err)
	}
	return &report, nil
}
