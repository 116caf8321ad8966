package objectstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"fileconvert/models"
)

// GCSStore writes file payloads to a Cloud Storage bucket. It is the
// durable side of PersistFile: the in-memory copy is only dropped after
// the object write is confirmed.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func ConnectGCS(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (g *GCSStore) Store(ctx context.Context, rec *models.FileRecord) (string, error) {
	name := rec.ID
	if rec.Name != "" {
		name = rec.ID + "/" + rec.Name
	}

	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = rec.MimeType

	if _, err := w.Write(rec.Bytes); err != nil {
		w.Close()
		return "", fmt.Errorf("write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %s: %w", name, err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, name), nil
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}
