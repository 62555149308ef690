package ranking

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxCalibrationBytes bounds the size of a downloaded calibration object.
const maxCalibrationBytes = 1 << 20

// ObjectGetter is the subset of the S3 client used to fetch calibration.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ObjectSourceConfig locates a calibration object in an S3-compatible bucket.
type ObjectSourceConfig struct {
	BucketName      string
	Key             string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// ObjectSource fetches calibration JSON from object storage so weights can be
// rolled out without touching the deployment.
type ObjectSource struct {
	client ObjectGetter
	bucket string
	key    string
}

// NewObjectSource creates an S3/R2 calibration source.
func NewObjectSource(cfg ObjectSourceConfig) (*ObjectSource, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("object key is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("access key ID and secret are required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	client := s3.New(s3.Options{
		Region: "auto", // R2 uses auto region
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return NewObjectSourceWithClient(client, cfg.BucketName, cfg.Key), nil
}

// NewObjectSourceWithClient creates a source over an existing client.
func NewObjectSourceWithClient(client ObjectGetter, bucket, key string) *ObjectSource {
	return &ObjectSource{client: client, bucket: bucket, key: key}
}

// Load downloads and parses the calibration object.
// On error, returns default weights with the error.
func (o *ObjectSource) Load(ctx context.Context) (*Weights, string, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		return DefaultWeights(), DefaultVersion, fmt.Errorf("failed to fetch calibration s3://%s/%s: %w", o.bucket, o.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxCalibrationBytes))
	if err != nil {
		return DefaultWeights(), DefaultVersion, fmt.Errorf("failed to read calibration object: %w", err)
	}
	return ParseCalibration(data)
}
