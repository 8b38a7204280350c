package s3check

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHeadBucket struct {
	err    error
	bucket string
}

func (m *mockHeadBucket) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	m.bucket = aws.ToString(in.Bucket)
	if m.err != nil {
		return nil, m.err
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestCheckBucket(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantIs  error
		wantErr bool
	}{
		{name: "reachable"},
		{name: "missing", err: &types.NotFound{}, wantIs: ErrBucketNotFound, wantErr: true},
		{name: "other", err: errors.New("dial tcp: timeout"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockHeadBucket{err: tt.err}
			err := NewWithClient(mock).CheckBucket(context.Background(), Target{Bucket: "demo-storage"})

			assert.Equal(t, "demo-storage", mock.bucket)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "demo-storage")
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestCheckBucket_NoName(t *testing.T) {
	mock := &mockHeadBucket{}
	err := NewWithClient(mock).CheckBucket(context.Background(), Target{})
	assert.Error(t, err)
	assert.Empty(t, mock.bucket)
}

func TestNewClient_Options(t *testing.T) {
	c := NewClient(Target{Endpoint: "https://fly.storage.tigris.dev", Region: "auto", AccessKeyID: "id", SecretAccessKey: "secret"})
	opts := c.Options()

	assert.Equal(t, "us-east-1", opts.Region)
	assert.True(t, opts.UsePathStyle)
	assert.Equal(t, "https://fly.storage.tigris.dev", aws.ToString(opts.BaseEndpoint))

	creds, err := opts.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "id", creds.AccessKeyID)
}
