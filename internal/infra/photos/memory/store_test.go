package memory

import (
	"bytes"
	"context"
	"errors"
	"herdbook/internal/photos/core"
	"io"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	info, err := s.Put(ctx, "animals/COW-1/0.jpg", bytes.NewReader([]byte("jpeg")), core.PutOptions{ContentType: "image/jpeg", Metadata: map[string]string{"animal": "a1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 4 || info.ETag == "" || info.URL == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "animals/COW-1/0.jpg", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, rc, err := s.Get(ctx, "animals/COW-1/0.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "jpeg" || got.ContentType != "image/jpeg" {
		t.Fatalf("unexpected get %q %+v", body, got)
	}
	got.Metadata["animal"] = "mutated"
	again, _, _ := s.Get(ctx, "animals/COW-1/0.jpg")
	if again.Metadata["animal"] != "a1" {
		t.Fatalf("metadata must be copied on read")
	}

	if _, err := s.Put(ctx, "animals/GOA-1/0.png", bytes.NewReader([]byte("png")), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, _ := s.List(ctx, "animals/COW-1/")
	if len(list) != 1 || list[0].Key != "animals/COW-1/0.jpg" {
		t.Fatalf("unexpected list %+v", list)
	}
	if u, err := s.URL(ctx, "animals/COW-1/0.jpg", core.URLOptions{}); err != nil || u != "memory://photos/animals/COW-1/0.jpg" {
		t.Fatalf("unexpected url %q %v", u, err)
	}
	if ok, _ := s.Delete(ctx, "animals/COW-1/0.jpg"); !ok {
		t.Fatalf("expected delete to report existing photo")
	}
	if ok, _ := s.Delete(ctx, "animals/COW-1/0.jpg"); ok {
		t.Fatalf("second delete must report missing")
	}
	if _, _, err := s.Get(ctx, "animals/COW-1/0.jpg"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.URL(ctx, "missing", core.URLOptions{}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for url, got %v", err)
	}
	if _, err := s.Put(ctx, " ", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
