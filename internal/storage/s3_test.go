package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/photo-monetization/internal/config"
)

type fakeObjects struct {
	put    *s3.PutObjectInput
	body   string
	del    *s3.DeleteObjectInput
	putErr error
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.putErr
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.del = in
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresign struct {
	in      *s3.GetObjectInput
	expires time.Duration
}

func (f *fakePresign) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.in = in
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	f.expires = o.Expires
	return &v4.PresignedHTTPRequest{URL: "http://minio/photos/" + *in.Key + "?X-Amz-Signature=x", Method: "GET"}, nil
}

func TestS3Store_PutDeletePresign(t *testing.T) {
	objs := &fakeObjects{}
	pre := &fakePresign{}
	s := &S3Store{bucket: "photos", objects: objs, presign: pre}
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "users/u1/a.jpg", "image/jpeg", strings.NewReader("jpegbytes"), 9))
	assert.Equal(t, "photos", *objs.put.Bucket)
	assert.Equal(t, "users/u1/a.jpg", *objs.put.Key)
	assert.Equal(t, "image/jpeg", *objs.put.ContentType)
	assert.Equal(t, int64(9), *objs.put.ContentLength)
	assert.Equal(t, "jpegbytes", objs.body)

	require.NoError(t, s.Delete(ctx, "users/u1/a.jpg"))
	assert.Equal(t, "users/u1/a.jpg", *objs.del.Key)

	url, err := s.PresignGet(ctx, "users/u1/a.jpg", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "users/u1/a.jpg")
	assert.Equal(t, 15*time.Minute, pre.expires)
}

func TestS3Store_PutError(t *testing.T) {
	s := &S3Store{bucket: "photos", objects: &fakeObjects{putErr: errors.New("503 SlowDown")}, presign: &fakePresign{}}
	err := s.Put(context.Background(), "k", "image/png", strings.NewReader("x"), 1)
	assert.ErrorContains(t, err, "SlowDown")
}

func TestNewS3Store_AppliesConfig(t *testing.T) {
	origLoad, origNew, origPre := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient
	t.Cleanup(func() {
		loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient = origLoad, origNew, origPre
	})

	loadDefaultAWSConfig = func(_ context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-central-1", lo.Region)
		assert.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	}
	var opts s3.Options
	newS3ClientFromConfig = func(_ aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}
	newS3PresignClient = func(*s3.Client) *s3.PresignClient { return &s3.PresignClient{} }

	s, err := NewS3Store(context.Background(), config.StorageConfig{
		Bucket: "photos", Region: "eu-central-1", Endpoint: "http://127.0.0.1:9000",
		AccessKey: "minioadmin", SecretKey: "minioadmin", UsePathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "photos", s.bucket)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}

func TestNewS3Store_Errors(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.StorageConfig{})
	assert.Error(t, err)

	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no region")
	}
	_, err = NewS3Store(context.Background(), config.StorageConfig{Bucket: "b"})
	assert.ErrorContains(t, err, "no region")
}
