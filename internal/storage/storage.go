package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Keys are unique per upload, so objects never change once written.
const immutableCacheControl = "public, max-age=31536000, immutable"

// Object is one listing asset on its way to the media host.
type Object struct {
	Key         string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ContentDisposition keeps the seller's original file name on download.
func (o Object) ContentDisposition() string {
	name := path.Base(strings.ReplaceAll(o.FileName, `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return "attachment"
	}
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}

// ObjectStorage is a public-read media host.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, obj Object) error
	URL(key string) string
	Bucket() string
}

// Storage stores listing files and hands back their public URLs.
type Storage struct {
	backend ObjectStorage
}

func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// EnsureBucket creates the bucket and makes listing assets publicly readable.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Upload stores obj and returns its public URL.
func (s *Storage) Upload(ctx context.Context, obj Object) (string, error) {
	if strings.TrimSpace(obj.Key) == "" {
		return "", fmt.Errorf("object key is required")
	}
	if strings.TrimSpace(obj.ContentType) == "" {
		obj.ContentType = contentTypeFor(obj.Key)
	}
	if err := s.backend.Put(ctx, obj); err != nil {
		return "", fmt.Errorf("put %s: %w", obj.Key, err)
	}
	return s.backend.URL(obj.Key), nil
}

func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// ProjectObjectKey returns a fresh, collision-free key for a listing asset.
// The original extension is kept so browsers can infer the file type.
func ProjectObjectKey(projectID int, fileName string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(fileName, `\`, "/"))))
	if len(ext) > 10 {
		ext = ""
	}
	return path.Join(projectPrefix, strconv.Itoa(projectID), uuid.NewString()+ext)
}

const projectPrefix = "projects"

func contentTypeFor(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func publicURL(base, bucket, key string) string {
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + strings.TrimLeft(key, "/")
}
