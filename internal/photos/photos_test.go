package photos

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"testing"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

func TestDetectImage(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		ct   string
		ext  string
	}{
		{"png", pngBytes, "image/png", ".png"},
		{"jpeg", jpegBytes, "image/jpeg", ".jpg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			img, err := DetectImage(tc.data)
			if err != nil {
				t.Fatalf("detect: %v", err)
			}
			if img.ContentType != tc.ct || img.Extension != tc.ext {
				t.Fatalf("unexpected image %+v", img)
			}
		})
	}
	if _, err := DetectImage([]byte("plain text, not a cow")); !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected ErrNotImage, got %v", err)
	}
	if _, err := DetectImage(nil); !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected ErrNotImage for empty payload, got %v", err)
	}
}

func TestKeyLayout(t *testing.T) {
	if got := Key("COW-2026-00001", 2, "png"); got != "animals/COW-2026-00001/2.png" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := Key("COW-2026-00001", 0, ".jpg"); got != "animals/COW-2026-00001/0.jpg" {
		t.Fatalf("unexpected key %s", got)
	}
	if AnimalPrefix("GOA-1") != "animals/GOA-1/" {
		t.Fatalf("unexpected prefix")
	}
}

func TestPutImageAcrossDrivers(t *testing.T) {
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	stores := map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
		"s3":     NewMockS3ForTests(),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			info, err := PutImage(ctx, store, "COW-2026-00001", 0, pngBytes, map[string]string{"owner": "u1"})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Key != "animals/COW-2026-00001/0.png" || info.ContentType != "image/png" {
				t.Fatalf("unexpected info %+v", info)
			}
			_, rc, err := store.Get(ctx, info.Key)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			if string(body) != string(pngBytes) {
				t.Fatalf("round trip mismatch")
			}
			if _, err := PutImage(ctx, store, "COW-2026-00001", 1, []byte("not an image"), nil); !errors.Is(err, ErrNotImage) {
				t.Fatalf("expected ErrNotImage, got %v", err)
			}
			list, _ := store.List(ctx, AnimalPrefix("COW-2026-00001"))
			if len(list) != 1 {
				t.Fatalf("rejected upload must not be stored, got %d", len(list))
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("memory: %v", err)
	}
	s, err = Open(ctx, Config{FSRoot: t.TempDir()})
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("default fs: %v", err)
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected s3 without bucket to fail")
	}
	if _, err := Open(ctx, Config{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestDecodeInline(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(jpegBytes)
	for _, in := range []string{encoded, "data:image/jpeg;base64," + encoded} {
		got, err := DecodeInline(in)
		if err != nil || string(got) != string(jpegBytes) {
			t.Fatalf("decode %q: %v", in[:10], err)
		}
	}
	if _, err := DecodeInline("data:image/jpeg,raw"); !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected non-base64 data url to fail, got %v", err)
	}
	if _, err := DecodeInline("%%%"); !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected invalid base64 to fail, got %v", err)
	}
}
