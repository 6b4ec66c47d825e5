package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgl-project/ome-mtl/pkg/logging"
	"github.com/sgl-project/ome-mtl/pkg/storage"
)

// mockS3Client serves objects from memory, two keys per page.
type mockS3Client struct {
	mu       sync.Mutex
	objects  map[string][]byte
	listErr  error
	getCalls int
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	m.getCalls++
	data, ok := m.objects[aws.ToString(params.Key)]
	m.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	size := int64(len(data))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(size),
		ContentRange:  aws.String(fmt.Sprintf("bytes 0-%d/%d", size-1, size)),
	}, nil
}

func (m *mockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(params.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if params.ContinuationToken != nil {
		_, _ = fmt.Sscanf(*params.ContinuationToken, "%d", &start)
	}
	end := start + 2
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(m.objects[k])))})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(fmt.Sprintf("%d", end))
	}
	return out, nil
}

func newMockStorage(client *mockS3Client) *S3Storage {
	return newWithClient(client, DefaultConfig(), logging.Discard())
}

func TestS3Storage_DownloadPrefix(t *testing.T) {
	client := &mockS3Client{objects: map[string][]byte{
		"runs/cws_ckpt/bert_config/config.json":  []byte(`{"vocab_size":21128}`),
		"runs/cws_ckpt/tokenizer/vocab.txt":      []byte("[PAD]\n[UNK]\n"),
		"runs/cws_ckpt/tokenizer/config.json":    []byte(`{}`),
		"runs/cws_ckpt/params.json":              []byte(`{}`),
		"runs/cws_ckpt/tokenizer/":               nil,
		"runs/cws_ckpt_other/bert_config/x.json": []byte(`{}`),
		"elsewhere/bert_config/config.json":      []byte(`{}`),
	}}
	s := newMockStorage(client)
	target := t.TempDir()

	paths, err := s.DownloadPrefix(context.Background(),
		storage.ObjectURI{Provider: storage.ProviderAWS, BucketName: "ckpts", Prefix: "runs/cws_ckpt"}, target)
	require.NoError(t, err)
	assert.Len(t, paths, 4)
	assert.Equal(t, 4, client.getCalls)

	data, err := os.ReadFile(filepath.Join(target, "bert_config", "config.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"vocab_size":21128}`, string(data))
	assert.FileExists(t, filepath.Join(target, "tokenizer", "vocab.txt"))
	assert.NoFileExists(t, filepath.Join(target, "bert_config", "x.json"))
}

func TestS3Storage_DownloadPrefixErrors(t *testing.T) {
	tests := []struct {
		name    string
		client  *mockS3Client
		uri     storage.ObjectURI
		wantErr string
	}{
		{
			name:    "empty prefix",
			client:  &mockS3Client{objects: map[string][]byte{}},
			uri:     storage.ObjectURI{Provider: storage.ProviderAWS, BucketName: "b", Prefix: "missing"},
			wantErr: "no objects found under s3://b/missing",
		},
		{
			name:    "list failure",
			client:  &mockS3Client{listErr: errors.New("access denied")},
			uri:     storage.ObjectURI{Provider: storage.ProviderAWS, BucketName: "b", Prefix: "p"},
			wantErr: "failed to list objects",
		},
		{
			name:    "local uri",
			client:  &mockS3Client{},
			uri:     storage.ObjectURI{Provider: storage.ProviderLocal, Prefix: "/tmp/x"},
			wantErr: "not an S3 location",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newMockStorage(tt.client).DownloadPrefix(context.Background(), tt.uri, t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestS3Storage_List(t *testing.T) {
	client := &mockS3Client{objects: map[string][]byte{
		"p/a": []byte("a"), "p/b": []byte("b"), "p/c": []byte("c"), "p/d/": nil, "q/e": []byte("e"),
	}}
	keys, err := newMockStorage(client).List(context.Background(),
		storage.ObjectURI{Provider: storage.ProviderAWS, BucketName: "b", Prefix: "p/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p/a", "p/b", "p/c"}, keys)
	assert.Equal(t, storage.ProviderAWS, newMockStorage(client).Provider())
}

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := NewConfig(viper.New())
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("from viper", func(t *testing.T) {
		v := viper.New()
		v.Set("storage.s3", map[string]interface{}{
			"region":            "us-west-2",
			"endpoint":          "http://minio:9000",
			"force_path_style":  true,
			"access_key_id":     "AKID",
			"secret_access_key": "SECRET",
		})
		cfg, err := NewConfig(v)
		require.NoError(t, err)
		assert.Equal(t, "us-west-2", cfg.Region)
		assert.True(t, cfg.ForcePathStyle)
		assert.Equal(t, int64(5*1024*1024), cfg.PartSize)

		t.Setenv("AWS_PROFILE", "")
		s, err := New(context.Background(), cfg, logging.Discard())
		require.NoError(t, err)
		assert.NotNil(t, s.downloader)
	})

	t.Run("half a key pair", func(t *testing.T) {
		v := viper.New()
		v.Set("storage.s3.access_key_id", "AKID")
		_, err := NewConfig(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SecretAccessKey")
	})
}
