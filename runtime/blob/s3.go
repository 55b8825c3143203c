package blob

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/anotherai/gateway/runtime/apierror"
)

// s3Client mirrors the subset of *s3.Client the store needs, following
// runtime/provider/bedrock's pattern of a narrow local interface so tests
// can substitute a fake without depending on the full AWS SDK surface.
type s3Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store stores blobs as objects in a single bucket, keyed directly by
// their content hash (no directory sharding: S3 partitions by key prefix
// internally and a flat namespace is simplest for object storage).
type S3Store struct {
	client s3Client
	bucket string
}

// NewS3Store builds a Store backed by client against bucket.
func NewS3Store(client s3Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// NewS3StoreFromEnv loads the default AWS config (region, credentials chain)
// the way runtime/provider/bedrock's adapter wiring does, and builds an
// S3Store against bucket.
func NewS3StoreFromEnv(ctx context.Context, bucket string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "load aws config", err)
	}
	return NewS3Store(s3.NewFromConfig(cfg), bucket), nil
}

func (s *S3Store) Put(ctx context.Context, data []byte, contentType string) (Ref, error) {
	key := keyFor(data)
	ref := Ref{Key: key, Size: int64(len(data)), ContentType: contentType}

	exists, err := s.Exists(ctx, key)
	if err != nil {
		return Ref{}, err
	}
	if exists {
		return ref, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Ref{}, apierror.Wrap(apierror.KindInternal, "upload blob to s3", err)
	}
	return ref, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, apierror.NotFound("blob", "blob %s not found", key)
		}
		return nil, apierror.Wrap(apierror.KindInternal, "download blob from s3", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "read blob body", err)
	}
	return data, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, apierror.Wrap(apierror.KindInternal, "head blob in s3", err)
	}
	return true, nil
}

// isNotFound reports whether err represents a missing S3 object, across the
// couple of shapes the SDK surfaces it in (a typed NotFound/NoSuchKey error
// from most calls, or a bare 404 response error from HeadObject, which
// carries no body to decode a typed error from).
func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}
