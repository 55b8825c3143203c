package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3Client struct {
	objects      map[string][]byte
	putCallCount int
}

func newFakeS3Client() *fakeS3Client {
	return &fakeS3Client{objects: map[string][]byte{}}
}

func (f *fakeS3Client) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*params.Key]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*params.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3Client) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putCallCount++
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3Client()
	store := NewS3Store(client, "test-bucket")

	data := []byte("hello s3 blob")
	ref, err := store.Put(ctx, data, "image/png")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), ref.Size)

	got, err := store.Get(ctx, ref.Key)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestS3StorePutDedupesIdenticalContent(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3Client()
	store := NewS3Store(client, "test-bucket")

	data := []byte("duplicate me")
	_, err := store.Put(ctx, data, "text/plain")
	require.NoError(t, err)
	_, err = store.Put(ctx, data, "text/plain")
	require.NoError(t, err)

	require.Equal(t, 1, client.putCallCount)
}

func TestS3StoreExistsFalseForMissingKey(t *testing.T) {
	ctx := context.Background()
	store := NewS3Store(newFakeS3Client(), "test-bucket")

	exists, err := store.Exists(ctx, "deadbeef")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestIsNotFoundRecognizesTypedErrors(t *testing.T) {
	require.True(t, isNotFound(&s3types.NotFound{}))
	require.True(t, isNotFound(&s3types.NoSuchKey{}))
	require.False(t, isNotFound(errors.New("boom")))
}
