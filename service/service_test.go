package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"fileconvert/converter"
	"fileconvert/dto"
	"fileconvert/lifecycle"
	"fileconvert/models"
	"fileconvert/store"
)

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 64, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T, ceiling int64) (*ConversionService, *store.MemoryStore) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := store.New(ceiling)
	lm := lifecycle.NewManager(st, nil, nil, nil, logger)
	engine := converter.NewConverter(logger)
	proc := NewProcessor(st, lm, engine, 2, logger)
	svc := NewConversionService(st, lm, proc, nil, nil, nil, logger)
	return svc, st
}

func TestConversionService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 0)

	upload, err := svc.CreateUpload(ctx, testJPEG(t, 200, 100), "photo.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("CreateUpload failed: %v", err)
	}

	width := 100
	op, err := svc.CreateConversion(ctx, "trace-e2e", &dto.CreateConversionRequest{
		FileID:       upload.ID,
		OutputFormat: "png",
		TargetWidth:  &width,
	})
	if err != nil {
		t.Fatalf("CreateConversion failed: %v", err)
	}

	done, err := svc.WaitOperationStatus(ctx, op.ID, 10*time.Second)
	if err != nil {
		t.Fatalf("WaitOperationStatus failed: %v", err)
	}
	if done.Status != string(models.StatusCompleted) {
		t.Fatalf("Expected completed, got %s (error: %+v)", done.Status, done.Error)
	}
	if done.ProgressPercent != 100 {
		t.Errorf("Expected 100 progress, got %d", done.ProgressPercent)
	}
	if done.ResultFileID == "" {
		t.Fatal("Expected a result file id")
	}

	rec, err := svc.GetFile(ctx, done.ResultFileID)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if rec.MimeType != "image/png" {
		t.Errorf("Expected image/png, got %s", rec.MimeType)
	}
	img, err := png.Decode(bytes.NewReader(rec.Bytes))
	if err != nil {
		t.Fatalf("Result is not a valid PNG: %v", err)
	}
	if img.Bounds().Dx() != 100 {
		t.Errorf("Expected width 100, got %d", img.Bounds().Dx())
	}
}

func TestConversionService_BadPayloadFails(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 0)

	upload, err := svc.CreateUpload(ctx, []byte("definitely not an image"), "junk.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("CreateUpload failed: %v", err)
	}

	op, err := svc.CreateConversion(ctx, "", &dto.CreateConversionRequest{
		FileID:       upload.ID,
		OutputFormat: "png",
	})
	if err != nil {
		t.Fatalf("CreateConversion failed: %v", err)
	}

	done, err := svc.WaitOperationStatus(ctx, op.ID, 10*time.Second)
	if err != nil {
		t.Fatalf("WaitOperationStatus failed: %v", err)
	}
	if done.Status != string(models.StatusFailed) {
		t.Fatalf("Expected failed, got %s", done.Status)
	}
	if done.Error == nil || done.Error.Code != models.ErrCodeConversionFailed {
		t.Errorf("Expected conversion_failed error info, got %+v", done.Error)
	}
}

func TestConversionService_UploadRejectedAtCeiling(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, 64)

	_, err := svc.CreateUpload(ctx, make([]byte, 128), "big.jpg", "image/jpeg")
	if !errors.Is(err, store.ErrResourceExhausted) {
		t.Fatalf("Expected ErrResourceExhausted, got %v", err)
	}
	if stats := st.Stats(); stats.FileCount != 0 {
		t.Errorf("Expected file count unchanged, got %d", stats.FileCount)
	}
}

func TestConversionService_ConversionForUnknownFile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 0)

	_, err := svc.CreateConversion(ctx, "", &dto.CreateConversionRequest{
		FileID:       "missing",
		OutputFormat: "png",
	})
	if !errors.Is(err, store.ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound, got %v", err)
	}
}

func TestConversionService_StatusMirrorFallback(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	st := store.New(0)
	lm := lifecycle.NewManager(st, nil, nil, nil, logger)
	proc := NewProcessor(st, lm, converter.NewConverter(logger), 1, logger)

	mirror := &memoryMirror{ops: map[string]*models.Operation{
		"evicted": {
			ID:     "evicted",
			Status: models.StatusCompleted,
		},
	}}
	svc := NewConversionService(st, lm, proc, mirror, nil, nil, logger)

	resp, err := svc.GetOperationStatus(ctx, "evicted")
	if err != nil {
		t.Fatalf("Expected mirror fallback, got %v", err)
	}
	if resp.Status != string(models.StatusCompleted) {
		t.Errorf("Expected completed from mirror, got %s", resp.Status)
	}

	if _, err := svc.GetOperationStatus(ctx, "gone"); !errors.Is(err, store.ErrOperationNotFound) {
		t.Errorf("Expected ErrOperationNotFound, got %v", err)
	}
}

func TestConversionService_PersistFile_NotConfigured(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, 0)

	id, err := st.PutFile(&models.FileRecord{Bytes: []byte("payload")})
	if err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}

	if _, err := svc.PersistFile(ctx, id); !errors.Is(err, ErrNoObjectStore) {
		t.Errorf("Expected ErrNoObjectStore, got %v", err)
	}
	// Without a durable copy the local one must stay.
	if _, err := svc.GetFile(ctx, id); err != nil {
		t.Errorf("Expected local copy retained, got %v", err)
	}
}

func TestConversionService_PersistFile(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	st := store.New(0)
	lm := lifecycle.NewManager(st, nil, nil, nil, logger)
	proc := NewProcessor(st, lm, converter.NewConverter(logger), 1, logger)
	objects := &fakeObjectStore{url: "https://bucket/abc"}
	svc := NewConversionService(st, lm, proc, nil, objects, nil, logger)

	upload, err := svc.CreateUpload(ctx, []byte("payload"), "a.txt", "text/plain")
	if err != nil {
		t.Fatalf("CreateUpload failed: %v", err)
	}

	url, err := svc.PersistFile(ctx, upload.ID)
	if err != nil {
		t.Fatalf("PersistFile failed: %v", err)
	}
	if url != "https://bucket/abc" {
		t.Errorf("Expected durable url, got %s", url)
	}
	// Safe to drop locally once the durable copy is confirmed.
	if _, err := svc.GetFile(ctx, upload.ID); !errors.Is(err, store.ErrFileNotFound) {
		t.Errorf("Expected local copy deleted, got %v", err)
	}
}

type memoryMirror struct {
	ops map[string]*models.Operation
}

func (m *memoryMirror) Get(ctx context.Context, id string) (*models.Operation, error) {
	op, ok := m.ops[id]
	if !ok {
		return nil, store.ErrOperationNotFound
	}
	return op, nil
}

type fakeObjectStore struct {
	url string
}

func (f *fakeObjectStore) Store(ctx context.Context, rec *models.FileRecord) (string, error) {
	return f.url, nil
}
