package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_PutOverwritesSameName(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, "/qrcodes/")
	ctx := context.Background()

	res, err := l.Put(ctx, strings.NewReader("first"), PutInput{Filename: "P1.png", ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "P1.png", res.Key)
	assert.Equal(t, "/qrcodes/P1.png", res.URL)

	_, err = l.Put(ctx, strings.NewReader("second"), PutInput{Filename: "P1.png"})
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dir, "P1.png"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, l.Delete(ctx, res.Key))
	require.NoError(t, l.Delete(ctx, res.Key))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "P1.png", objectKey("P1.png"))
	assert.Equal(t, "passwd", objectKey("../../etc/passwd"))
	assert.Equal(t, "a-b.jpg", objectKey("a b.jpg"))
	assert.Equal(t, "object", objectKey(".exe"))
}

type fakeObjects struct {
	put     *s3.PutObjectInput
	body    string
	deleted string
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = *in.Key
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3_Put(t *testing.T) {
	api := &fakeObjects{}
	s := &S3{Client: api, Bucket: "vistoria", Prefix: "qrcodes", PublicBaseURL: "https://cdn.example.com"}

	res, err := s.Put(context.Background(), strings.NewReader("png"), PutInput{Filename: "P1.png", ContentType: "image/png", Size: 3})
	require.NoError(t, err)
	assert.Equal(t, "qrcodes/P1.png", res.Key)
	assert.Equal(t, "https://cdn.example.com/qrcodes/P1.png", res.URL)
	assert.Equal(t, "vistoria", *api.put.Bucket)
	assert.Equal(t, "image/png", *api.put.ContentType)
	assert.Equal(t, int64(3), *api.put.ContentLength)
	assert.Equal(t, "png", api.body)

	require.NoError(t, s.Delete(context.Background(), res.Key))
	assert.Equal(t, "qrcodes/P1.png", api.deleted)
}

func TestNew(t *testing.T) {
	st, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, st)

	_, err = New(context.Background(), Config{Driver: "s3"})
	assert.ErrorIs(t, err, ErrMisconfigured)

	_, err = New(context.Background(), Config{Driver: "ftp"})
	assert.ErrorIs(t, err, ErrMisconfigured)
}
