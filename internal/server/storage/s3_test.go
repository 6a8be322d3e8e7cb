package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte

	putErr  error
	headErr error
	listErr error

	pages []s3.ListObjectsV2Output
	page  int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[*params.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.page >= len(f.pages) {
		return &s3.ListObjectsV2Output{}, nil
	}
	out := f.pages[f.page]
	f.page++
	return &out, nil
}

func s3ProviderWithFake(fake *fakeS3) *S3Provider {
	return &S3Provider{client: fake, bucket: "drops", publicURL: "https://files.example.com"}
}

func TestS3StoreReturnsPublicURL(t *testing.T) {
	fake := newFakeS3()
	p := s3ProviderWithFake(fake)
	id := uuid.New()

	url, err := p.Store(context.Background(), id, []byte("ciphertext"))
	require.NoError(t, err)
	require.NotNil(t, url)
	assert.Equal(t, "https://files.example.com/"+id.String(), *url)
	assert.Equal(t, []byte("ciphertext"), fake.objects[id.String()])
}

func TestS3PublicURLTrailingSlashesStripped(t *testing.T) {
	p := &S3Provider{client: newFakeS3(), bucket: "drops", publicURL: "https://files.example.com"}
	id := uuid.New()

	fetch, err := p.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/"+id.String(), fetch.URL)
	assert.Nil(t, fetch.Data)
}

func TestS3ExistsDistinguishesNotFound(t *testing.T) {
	fake := newFakeS3()
	p := s3ProviderWithFake(fake)
	id := uuid.New()

	ok, err := p.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)

	fake.objects[id.String()] = []byte("x")
	ok, err = p.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	fake.headErr = errors.New("connection reset")
	_, err = p.Exists(context.Background(), id)
	assert.Error(t, err)
}

func TestS3DeleteRemovesObject(t *testing.T) {
	fake := newFakeS3()
	p := s3ProviderWithFake(fake)
	id := uuid.New()
	fake.objects[id.String()] = []byte("x")

	require.NoError(t, p.Delete(context.Background(), id))
	assert.NotContains(t, fake.objects, id.String())
}

func TestS3UsedStorageSumsAllPages(t *testing.T) {
	fake := newFakeS3()
	fake.pages = []s3.ListObjectsV2Output{
		{
			Contents: []types.Object{
				{Size: aws.Int64(100)},
				{Size: aws.Int64(200)},
			},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			Contents:    []types.Object{{Size: aws.Int64(50)}},
			IsTruncated: aws.Bool(false),
		},
	}
	p := s3ProviderWithFake(fake)

	used, err := p.UsedStorage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(350), used)
	assert.Equal(t, 2, fake.page)
}
