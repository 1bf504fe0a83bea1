package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/jobhub/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDisabled(t *testing.T) {
	s, err := Open(context.Background(), config.StorageConfig{Backend: config.BackendNone})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestOpenValidatesMinioConfig(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{
		Backend: config.BackendMinio,
		Minio:   config.MinioConfig{Endpoint: "localhost:9000", Bucket: "jobhub"},
	})
	assert.ErrorContains(t, err, "access key")
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StorageConfig{
		Backend: config.BackendMemory,
		Minio:   config.MinioConfig{Bucket: "jobhub"},
	})
	require.NoError(t, err)
	assert.Equal(t, "jobhub", s.Bucket())

	require.NoError(t, s.Put(ctx, "resumes/1/cv.txt", strings.NewReader("hello"), 5, "text/plain"))

	r, err := s.Get(ctx, "resumes/1/cv.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Delete(ctx, "resumes/1/cv.txt"))
	_, err = s.Get(ctx, "resumes/1/cv.txt")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	require.NoError(t, s.Delete(ctx, "resumes/1/cv.txt"))
}
