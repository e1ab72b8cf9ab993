package media

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
)

// S3Config configures the S3-compatible bucket that serves relayed media to LINE.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint for R2, MinIO and friends
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	PublicBaseURL   string // HTTPS base under which uploaded keys are reachable
	PathStyle       bool
}

// S3Host publishes local files to a bucket and returns public URLs.
type S3Host struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	baseURL  string
}

// NewS3Host builds an uploader from cfg. Static keys are used when set,
// otherwise the default AWS credential chain applies.
func NewS3Host(ctx context.Context, cfg S3Config) (*S3Host, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("media host: bucket is required")
	}
	if !strings.HasPrefix(cfg.PublicBaseURL, "https://") {
		return nil, fmt.Errorf("media host: public_base_url must be https")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media host: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3Host{
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Publish uploads the file and returns its public URL.
// The object key is <prefix>/<folder>/<file name>.
func (h *S3Host) Publish(ctx context.Context, f *File, folder string) (string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return "", fmt.Errorf("media host: open %s: %w", f.Path, err)
	}
	defer fh.Close()

	contentType := f.MIME
	if contentType == "" {
		if mt, err := mimetype.DetectFile(f.Path); err == nil {
			contentType = mt.String()
		}
	}

	key := path.Join(h.prefix, SanitizeName(folder), f.Name)
	_, err = h.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(h.bucket),
		Key:         aws.String(key),
		Body:        fh,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("media host: upload %s: %w", key, err)
	}
	return h.objectURL(key), nil
}

func (h *S3Host) objectURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return h.baseURL + "/" + strings.Join(parts, "/")
}
