package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "pages/abc.html", "text/html", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://pages/abc.html", uri)

	payload[0] = 'C'
	stored, ok := store.Object("pages/abc.html")
	require.True(t, ok)
	require.Equal(t, "content", string(stored))
	require.Equal(t, []string{"pages/abc.html"}, store.Paths())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestBlobStorePutObjectErrors(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.PutObject(context.Background(), "", "text/html", bytes.NewReader(nil))
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), "x", "text/html", failingReader{})
	require.ErrorContains(t, err, "disk gone")

	_, ok := store.Object("x")
	require.False(t, ok)
}
