package adapter

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Image is the raw bytes of an input photograph plus its MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// ImageSource resolves an image reference to its bytes. Refs are local
// file paths or gs://bucket/object URIs.
type ImageSource interface {
	Fetch(ctx context.Context, ref string) (*Image, error)
}

type imageSource struct {
	gcsOnce sync.Once
	gcs     *storage.Client
	gcsErr  error
}

// NewImageSource creates an image source. The Cloud Storage client is
// created lazily on the first gs:// ref, so local-only use needs no
// credentials.
func NewImageSource() ImageSource {
	return &imageSource{}
}

func (s *imageSource) Fetch(ctx context.Context, ref string) (*Image, error) {
	if strings.HasPrefix(ref, "gs://") {
		return s.fetchGCS(ctx, ref)
	}
	return s.fetchLocal(ref)
}

func (s *imageSource) fetchLocal(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read image file", goerr.V("path", path))
	}

	return &Image{Data: data, MIMEType: mimeTypeOf(path)}, nil
}

func (s *imageSource) fetchGCS(ctx context.Context, ref string) (*Image, error) {
	bucket, object, ok := strings.Cut(strings.TrimPrefix(ref, "gs://"), "/")
	if !ok || bucket == "" || object == "" {
		return nil, goerr.New("invalid gs:// reference", goerr.V("ref", ref))
	}

	client, err := s.gcsClient(ctx)
	if err != nil {
		return nil, err
	}

	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open storage object", goerr.V("ref", ref))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read storage object", goerr.V("ref", ref))
	}

	return &Image{Data: data, MIMEType: mimeTypeOf(object)}, nil
}

// gcsClient creates the Cloud Storage client on the first gs:// fetch.
// Fetch runs from concurrent analysis goroutines, so the init is
// guarded.
func (s *imageSource) gcsClient(ctx context.Context) (*storage.Client, error) {
	s.gcsOnce.Do(func() {
		s.gcs, s.gcsErr = storage.NewClient(ctx)
	})
	if s.gcsErr != nil {
		return nil, goerr.Wrap(s.gcsErr, "failed to create storage client")
	}
	return s.gcs, nil
}

func mimeTypeOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
