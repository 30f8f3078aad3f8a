package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// maxDeleteBatch is the DeleteObjects per-request key limit.
const maxDeleteBatch = 1000

// Store is an S3 client bound to a single bucket.
type Store struct {
	client *Client
	bucket string
}

// NewStore creates a store for bucket
func NewStore(client *Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Bucket returns the bucket name the store operates on
func (s *Store) Bucket() string {
	return s.bucket
}

// List returns every object under prefix, following continuation tokens.
// A missing bucket or prefix is reported as an empty listing.
func (s *Store) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	var token *string

	for {
		var page *s3.ListObjectsV2Output
		err := s.client.WithRetry(ctx, func() error {
			var err error
			page, err = s.client.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(s.bucket),
				Prefix:            aws.String(prefix),
				ContinuationToken: token,
			})
			return err
		})
		if err != nil {
			if IsNotFound(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			o := Object{Key: *obj.Key, LastModified: obj.LastModified}
			if obj.Size != nil {
				o.Size = *obj.Size
			}
			objects = append(objects, o)
		}

		if page.IsTruncated == nil || !*page.IsTruncated || page.NextContinuationToken == nil {
			break
		}
		token = page.NextContinuationToken
	}

	return objects, nil
}

// DeleteKeys removes keys in batches of up to 1000. Per-key failures reported
// by the service are returned alongside any request-level errors; a failed
// batch does not stop the remaining batches.
func (s *Store) DeleteKeys(ctx context.Context, keys []string) ([]DeleteFailure, error) {
	var failures []DeleteFailure
	var errs []error

	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		var out *s3.DeleteObjectsOutput
		err := s.client.WithRetry(ctx, func() error {
			var err error
			out, err = s.client.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &types.Delete{
					Objects: ids,
					Quiet:   aws.Bool(true),
				},
			})
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return failures, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("failed to delete %d objects from %s: %w", len(ids), s.bucket, err))
			continue
		}

		for _, e := range out.Errors {
			failures = append(failures, DeleteFailure{
				Key:     aws.ToString(e.Key),
				Code:    aws.ToString(e.Code),
				Message: aws.ToString(e.Message),
			})
		}
	}

	return failures, errors.Join(errs...)
}

// Upload stores body under key. body must be seekable so the request can be signed
// and retried.
func (s *Store) Upload(ctx context.Context, key string, body io.ReadSeeker, size int64) error {
	_, err := s.client.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", s.bucket, key, classify(err))
	}
	return nil
}

// Download copies the object at key into w and returns the number of bytes written.
// Errors are tagged with ErrObjectNotFound or ErrBadRequest when applicable.
func (s *Store) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	var out *s3.GetObjectOutput
	err := s.client.WithRetry(ctx, func() error {
		var err error
		out, err = s.client.s3Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return 0, classify(err)
	}
	defer func() { _ = out.Body.Close() }()

	n, err := io.Copy(w, out.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, key, err)
	}
	return n, nil
}
