// Package blob is the streaming object store client: get streams into
// a local file without fully buffering, put uploads from an io.Reader,
// and presigned GET URLs are minted for handoff to the transcription
// provider.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	xerrors "github.com/catalystforge/subtitle-worker/errors"
	"github.com/catalystforge/subtitle-worker/metrics"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cenkalti/backoff/v4"
)

// Client wraps an S3 bucket. Every job's videoUrl/audioUrl/subtitleUrl
// is a key within this one bucket.
type Client struct {
	bucket     string
	s3         *s3.S3
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
}

func New(region, bucket, accessKeyID, secretKey string) (*Client, error) {
	cfg := aws.NewConfig().WithRegion(region)
	if accessKeyID != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(accessKeyID, secretKey, ""))
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	svc := s3.New(sess)
	return &Client{
		bucket:     bucket,
		s3:         svc,
		downloader: s3manager.NewDownloaderWithClient(svc),
		uploader:   s3manager.NewUploaderWithClient(svc),
	}, nil
}

func retryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, 3)
}

// Get streams key into localPath without buffering the whole object in
// memory, the contract videos (which may be large) require.
func (c *Client) Get(ctx context.Context, key, localPath string) error {
	start := time.Now()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("creating local file %q: %w", localPath, err)
	}
	defer f.Close()

	err = backoff.Retry(func() error {
		_, err := c.downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		return classify(err)
	}, retryBackoff())

	if err != nil {
		metrics.Metrics.ObjectStoreClient.FailureCount.WithLabelValues("get", c.bucket).Inc()
		if isNotFound(err) {
			return xerrors.NewObjectNotFoundError(fmt.Sprintf("key %q not found in bucket %q", key, c.bucket), err)
		}
		return fmt.Errorf("downloading %q: %w", key, err)
	}

	metrics.Metrics.ObjectStoreClient.RequestDuration.WithLabelValues("get", c.bucket).Observe(time.Since(start).Seconds())
	return nil
}

// Put uploads body under key with the given content type. Small
// artifacts (audio, subtitle) may be buffered upstream by the caller;
// the client itself streams from the reader.
func (c *Client) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	start := time.Now()

	err := backoff.Retry(func() error {
		_, err := c.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket:      aws.String(c.bucket),
			Key:         aws.String(key),
			ContentType: aws.String(contentType),
			Body:        body,
		})
		return classify(err)
	}, retryBackoff())

	if err != nil {
		metrics.Metrics.ObjectStoreClient.FailureCount.WithLabelValues("put", c.bucket).Inc()
		return fmt.Errorf("uploading %q: %w", key, err)
	}

	metrics.Metrics.ObjectStoreClient.RequestDuration.WithLabelValues("put", c.bucket).Observe(time.Since(start).Seconds())
	return nil
}

// PresignGet mints a short-lived read URL for key, handed to the
// transcription provider so it can fetch the audio directly from S3.
func (c *Client) PresignGet(key string, ttl time.Duration) (string, error) {
	req, _ := c.s3.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return req.Presign(ttl)
}

// classify marks a not-found error from an upload/download attempt as
// permanent so backoff.Retry stops at once. Every other error, including
// a bad request or access denied, is returned as is and retried.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return backoff.Permanent(err)
	}
	return err
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if ok := asAWSErr(err, &aerr); ok {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}

func asAWSErr(err error, target *awserr.Error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		*target = aerr
		return true
	}
	return false
}
