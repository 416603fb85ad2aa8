package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tush00nka/unzipbot/internal/config"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "chats/42/abc/photos.zip", ObjectKey(42, "abc", "photos.zip"))
	assert.Equal(t, "chats/-100500/abc/evil.zip", ObjectKey(-100500, "abc", "../../evil.zip"))
}

func TestNewS3ServiceRequiresBucket(t *testing.T) {
	_, err := NewS3Service(context.Background(), &config.Config{S3Region: "us-east-1"}, nil)
	assert.Error(t, err)
}

func TestS3UploadFile(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc, err := NewS3Service(context.Background(), &config.Config{
		S3Endpoint:        server.URL,
		S3Region:          "us-east-1",
		S3BucketName:      "archives",
		S3AccessKeyID:     "minio",
		S3SecretAccessKey: "minio-secret",
	}, nil)
	require.NoError(t, err)

	meta, err := svc.UploadFile(context.Background(), strings.NewReader("PK\x03\x04"), "photos.zip", "application/zip", 7, 42)
	require.NoError(t, err)

	assert.Equal(t, "archives", meta.S3Bucket)
	assert.Equal(t, int64(42), meta.ChatID)
	assert.Equal(t, int64(7), meta.SenderID)
	assert.True(t, strings.HasPrefix(meta.S3Key, "chats/42/"))
	assert.True(t, strings.HasSuffix(meta.S3Key, "/photos.zip"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/archives/"+meta.S3Key, path)
}
