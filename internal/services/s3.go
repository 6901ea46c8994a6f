package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"blood-donation-functions/internal/models"
)

// S3API is the subset of the S3 client used by ReceiptArchive
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ReceiptArchive stores deletion receipts in a private S3 bucket
type ReceiptArchive struct {
	client     S3API
	bucketName string
}

// S3UploadResult represents the result of an S3 upload operation
type S3UploadResult struct {
	Key         string    `json:"key"`
	ETag        string    `json:"etag"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
	ContentType string    `json:"content_type"`
}

// NewReceiptArchive creates an archive writing to bucketName
func NewReceiptArchive(client S3API, bucketName string) *ReceiptArchive {
	return &ReceiptArchive{
		client:     client,
		bucketName: bucketName,
	}
}

// Enabled reports whether a bucket is configured
func (a *ReceiptArchive) Enabled() bool {
	return a != nil && a.bucketName != ""
}

// UploadDeletionReceipt writes the receipt of a completed run
func (a *ReceiptArchive) UploadDeletionReceipt(ctx context.Context, receipt models.DeletionReceipt) (*S3UploadResult, error) {
	if !a.Enabled() {
		return nil, fmt.Errorf("receipt bucket is not configured")
	}

	jsonData, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deletion receipt to JSON: %w", err)
	}

	return a.uploadJSON(ctx, jsonData, models.DeletionReceiptKey(receipt.UserID, receipt.RunID))
}

func (a *ReceiptArchive) uploadJSON(ctx context.Context, data []byte, key string) (*S3UploadResult, error) {
	key = strings.TrimPrefix(key, "/")
	contentType := "application/json"

	result, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucketName),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
		Metadata: map[string]string{
			"uploaded-by": "blood-donation-functions",
			"upload-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &S3UploadResult{
		Key:         key,
		ETag:        strings.Trim(aws.ToString(result.ETag), `"`),
		Size:        int64(len(data)),
		UploadedAt:  time.Now(),
		ContentType: contentType,
	}, nil
}
