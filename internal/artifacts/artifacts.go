// Package artifacts uploads failure screenshots to S3-compatible object
// storage.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Config holds object storage settings.
type Config struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	Region    string `yaml:"region" mapstructure:"region"`
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool { return c.Endpoint != "" }

// Uploader stores screenshots in a bucket.
type Uploader struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// New creates an Uploader. It returns nil, nil when cfg has no endpoint.
func New(cfg Config) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if cfg.Bucket == "" {
		return nil, eris.New("artifacts: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "artifacts: create client")
	}
	return &Uploader{client: client, bucket: cfg.Bucket, now: time.Now}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return eris.Wrapf(err, "artifacts: check bucket %s", u.bucket)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return eris.Wrapf(err, "artifacts: create bucket %s", u.bucket)
	}
	return nil
}

// UploadScreenshot stores png under <runID>/<domain>-<unix>.png and returns
// the object URL.
func (u *Uploader) UploadScreenshot(ctx context.Context, runID, domain string, png []byte) (string, error) {
	key := ScreenshotKey(runID, domain, u.now())

	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(png), int64(len(png)), minio.PutObjectOptions{
		ContentType: "image/png",
	})
	if err != nil {
		return "", eris.Wrapf(err, "artifacts: upload %s", key)
	}

	objURL := u.client.EndpointURL().JoinPath(u.bucket, key).String()
	zap.L().Info("artifacts: screenshot uploaded", zap.String("domain", domain), zap.String("url", objURL))
	return objURL, nil
}

// ScreenshotKey builds the object key for a screenshot.
func ScreenshotKey(runID, domain string, at time.Time) string {
	if runID == "" {
		runID = "adhoc"
	}
	domain = strings.NewReplacer("/", "_", "\\", "_").Replace(domain)
	return fmt.Sprintf("%s/%s-%d.png", url.PathEscape(runID), domain, at.Unix())
}
