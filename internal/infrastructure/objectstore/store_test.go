package objectstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/config"
)

func testConfig() config.StorageConfig {
	return config.StorageConfig{
		Enabled:   true,
		Endpoint:  "https://media.example.test",
		Region:    "auto",
		Bucket:    "remoteeye",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
		UseSSL:    true,
		URLExpiry: 600,
	}
}

func TestNew_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	s, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, s.IsConfigured())

	_, err = s.PresignUpload(context.Background(), "photos/d/a.jpg", 0)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.PresignDownload(context.Background(), "photos/d/a.jpg", 0)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNew_Incomplete(t *testing.T) {
	cfg := testConfig()
	cfg.SecretKey = ""

	s, err := New(cfg)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, s.IsConfigured())
}

func TestNilStore(t *testing.T) {
	var s *Store
	assert.False(t, s.IsConfigured())
	assert.Equal(t, DefaultURLExpiry, s.URLExpiry())
}

func TestURLExpiry(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, s.URLExpiry())

	cfg := testConfig()
	cfg.URLExpiry = 0
	s, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultURLExpiry, s.URLExpiry())

	cfg.URLExpiry = 30 * 24 * 3600
	s, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, maxURLExpiry, s.URLExpiry())
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "photos/dev-1/a.jpg", want: "remoteeye-media/photos/dev-1/a.jpg"},
		{in: "/audios/dev-1/b.m4a", want: "remoteeye-media/audios/dev-1/b.m4a"},
		{in: "remoteeye-media/photos/dev-1/a.jpg", want: "remoteeye-media/photos/dev-1/a.jpg"},
		{in: "", wantErr: true},
		{in: "../secrets", wantErr: true},
		{in: "photos/../../x", wantErr: true},
		{in: "photos//a.jpg", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ObjectKey(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidKey), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPresignUpload(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)
	require.True(t, s.IsConfigured())

	u, err := s.PresignUpload(context.Background(), "photos/dev-1/a.jpg", 5*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "media.example.test", u.Host)
	assert.True(t, strings.HasSuffix(u.Path, "/remoteeye-media/photos/dev-1/a.jpg"), "path = %s", u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestPresignDownload(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	u, err := s.PresignDownload(context.Background(), "audios/dev-1/rec.m4a", 0)
	require.NoError(t, err)

	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("response-content-disposition"), "rec.m4a")
}

func TestPresign_InvalidKey(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	_, err = s.PresignUpload(context.Background(), "../etc/passwd", 0)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEndpointHost(t *testing.T) {
	assert.Equal(t, "acc.r2.cloudflarestorage.com", endpointHost("https://acc.r2.cloudflarestorage.com"))
	assert.Equal(t, "localhost:9000", endpointHost("localhost:9000"))
	assert.Equal(t, "localhost:9000", endpointHost("http://localhost:9000/"))
}
