package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBackend) EnsureBucket(context.Context) error { return nil }

func (f *fakeBackend) Put(_ context.Context, obj Object) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return err
	}
	f.objects[obj.Key] = data
	f.types[obj.Key] = obj.ContentType
	return nil
}

func (f *fakeBackend) URL(key string) string { return publicURL("http://media.local/", "bucket", key) }

func (f *fakeBackend) Bucket() string { return "bucket" }

func TestStorage_UploadReturnsPublicURL(t *testing.T) {
	backend := newFakeBackend()
	store := NewStorage(backend)

	url, err := store.Upload(context.Background(), Object{
		Key:  "projects/1/a.pdf",
		Body: strings.NewReader("pdf"),
		Size: 3,
	})
	require.NoError(t, err)
	require.Equal(t, "http://media.local/bucket/projects/1/a.pdf", url)
	require.Equal(t, []byte("pdf"), backend.objects["projects/1/a.pdf"])
	require.Equal(t, "application/pdf", backend.types["projects/1/a.pdf"])
}

func TestStorage_UploadPropagatesBackendError(t *testing.T) {
	backend := newFakeBackend()
	backend.putErr = errors.New("down")
	store := NewStorage(backend)

	url, err := store.Upload(context.Background(), Object{Key: "k", Body: strings.NewReader("x"), Size: 1})
	require.ErrorContains(t, err, "down")
	require.Empty(t, url)

	_, err = store.Upload(context.Background(), Object{Body: strings.NewReader("x")})
	require.Error(t, err)
}

func TestProjectObjectKey(t *testing.T) {
	key := ProjectObjectKey(42, `C:\docs\Tesis Final.PDF`)
	require.True(t, strings.HasPrefix(key, "projects/42/"), key)
	require.True(t, strings.HasSuffix(key, ".pdf"), key)
	require.NotEqual(t, key, ProjectObjectKey(42, "Tesis Final.pdf"))

	require.False(t, strings.Contains(ProjectObjectKey(1, "noext"), "."))
}

func TestContentDispositionKeepsFileName(t *testing.T) {
	require.Equal(t, `attachment; filename=informe.pdf`, Object{FileName: `C:\docs\informe.pdf`}.ContentDisposition())
	require.Equal(t, `attachment; filename="Tesis Final.pdf"`, Object{FileName: "Tesis Final.pdf"}.ContentDisposition())
	require.Equal(t, "attachment", Object{}.ContentDisposition())
}

func TestPublicReadPolicyScopesToPrefix(t *testing.T) {
	raw, err := publicReadPolicy("studex", projectPrefix)
	require.NoError(t, err)

	var policy bucketPolicy
	require.NoError(t, json.Unmarshal([]byte(raw), &policy))
	require.Len(t, policy.Statement, 1)
	require.Equal(t, []string{"s3:GetObject"}, policy.Statement[0].Action)
	require.Equal(t, []string{"arn:aws:s3:::studex/projects/*"}, policy.Statement[0].Resource)
}
