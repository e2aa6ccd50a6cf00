// Package s3 stages sync archives in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote"
)

// partSize is the size of each part of a multipart upload. S3 requires every
// part other than the last to be at least 5 MB.
const partSize = 8 << 20

// maxDeleteBatch is the most keys DeleteObjects accepts in one request.
const maxDeleteBatch = 1000

// Storage stages objects under a prefix in an S3 bucket. The cluster must
// have an instance profile that can read the bucket.
type Storage struct {
	client s3iface.S3API
	bucket string
	prefix string
}

var _ remote.Storage = Storage{}

// New returns storage backed by `bucket`, using the default AWS credential
// chain.
func New(region, bucket, prefix string) (Storage, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return Storage{}, errors.WithContext(err, "create aws session")
	}
	return NewWithClient(s3.New(sess), bucket, prefix), nil
}

// NewWithClient returns storage that uses the given S3 client.
func NewWithClient(client s3iface.S3API, bucket, prefix string) Storage {
	return Storage{client: client, bucket: bucket, prefix: prefix}
}

func (s Storage) key(p string) string {
	return strings.TrimPrefix(path.Join(s.prefix, p), "/")
}

// BeginUpload starts a multipart upload.
func (s Storage) BeginUpload(ctx context.Context, p string) (remote.Upload, error) {
	key := s.key(p)
	resp, err := s.client.CreateMultipartUploadWithContext(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.WithContext(err, "create multipart upload")
	}

	return &upload{
		client:   s.client,
		bucket:   s.bucket,
		key:      key,
		uploadID: aws.StringValue(resp.UploadId),
	}, nil
}

// Stat returns the size of an object.
func (s Storage) Stat(ctx context.Context, p string) (int64, error) {
	resp, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, errors.FileNotFound{Path: p}
		}
		return 0, errors.WithContext(err, "head object")
	}
	return aws.Int64Value(resp.ContentLength), nil
}

// Delete removes an object. If `recursive` is set, every object under `p`
// is removed as well.
func (s Storage) Delete(ctx context.Context, p string, recursive bool) error {
	key := s.key(p)
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return errors.WithContext(err, "delete object")
	}

	if !recursive {
		return nil
	}

	var keys []*s3.ObjectIdentifier
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(key + "/"),
	}
	err = s.client.ListObjectsV2PagesWithContext(ctx, listInput,
		func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, &s3.ObjectIdentifier{Key: obj.Key})
			}
			return true
		})
	if err != nil {
		return errors.WithContext(err, "list objects")
	}

	for len(keys) > 0 {
		n := len(keys)
		if n > maxDeleteBatch {
			n = maxDeleteBatch
		}

		resp, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: keys[:n], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return errors.WithContext(err, "delete objects")
		}
		if len(resp.Errors) != 0 {
			failed := resp.Errors[0]
			return errors.New("delete %s: %s", aws.StringValue(failed.Key),
				aws.StringValue(failed.Message))
		}
		keys = keys[n:]
	}
	return nil
}

// ChunkSize returns the multipart part size.
func (s Storage) ChunkSize() int {
	return partSize
}

// Locate returns the S3 URI of `p`. Objects in S3 aren't mounted on the
// driver, so they have to be copied before they're read.
func (s Storage) Locate(p string) remote.Location {
	return remote.Location{URI: fmt.Sprintf("s3://%s/%s", s.bucket, s.key(p))}
}

func isNotFound(err error) bool {
	awsErr, ok := err.(awserr.Error)
	if !ok {
		return false
	}

	switch awsErr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}

type upload struct {
	client   s3iface.S3API
	bucket   string
	key      string
	uploadID string

	written int64
	parts   []*s3.CompletedPart
}

func (u *upload) PutChunk(ctx context.Context, offset int64, data []byte) error {
	if offset != u.written {
		return errors.New("chunk at offset %d is out of order: %d bytes written",
			offset, u.written)
	}

	partNumber := int64(len(u.parts) + 1)
	resp, err := u.client.UploadPartWithContext(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(u.key),
		UploadId:      aws.String(u.uploadID),
		PartNumber:    aws.Int64(partNumber),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return errors.WithContext(err, fmt.Sprintf("upload part %d", partNumber))
	}

	u.parts = append(u.parts, &s3.CompletedPart{
		ETag:       resp.ETag,
		PartNumber: aws.Int64(partNumber),
	})
	u.written += int64(len(data))
	return nil
}

func (u *upload) Complete(ctx context.Context) error {
	_, err := u.client.CompleteMultipartUploadWithContext(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(u.bucket),
		Key:             aws.String(u.key),
		UploadId:        aws.String(u.uploadID),
		MultipartUpload: &s3.CompletedMultipartUpload{Parts: u.parts},
	})
	return errors.WithContext(err, "complete multipart upload")
}

func (u *upload) Abort(ctx context.Context) error {
	_, err := u.client.AbortMultipartUploadWithContext(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
	})
	return errors.WithContext(err, "abort multipart upload")
}
