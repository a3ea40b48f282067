package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"monositi/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = input
	f.body, _ = io.ReadAll(input.Body)
	return &manager.UploadOutput{}, nil
}

func TestS3Uploader_Upload(t *testing.T) {
	fake := &fakeUploader{}
	u := newS3Uploader(fake, config.StorageConfig{Bucket: "media", Region: "ap-south-1"})

	url, err := u.Upload(context.Background(), "listings/7/front door.jpg", "image/jpeg", []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "https://media.s3.ap-south-1.amazonaws.com/listings/7/front%20door.jpg", url)
	assert.Equal(t, "media", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "image/jpeg", aws.ToString(fake.input.ContentType))
	assert.Equal(t, []byte("jpeg"), fake.body)
}

func TestS3Uploader_PublicBaseURL(t *testing.T) {
	u := newS3Uploader(&fakeUploader{}, config.StorageConfig{Bucket: "media", PublicBaseURL: "https://cdn.example.com/"})

	url, err := u.Upload(context.Background(), "a.png", "image/png", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", url)
}

func TestS3Uploader_Error(t *testing.T) {
	u := newS3Uploader(&fakeUploader{err: errors.New("access denied")}, config.StorageConfig{Bucket: "media"})

	_, err := u.Upload(context.Background(), "a.png", "image/png", nil)
	assert.Error(t, err)
}
