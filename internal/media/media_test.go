package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wagatehq/wagate/internal/transport"
)

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Download(ctx context.Context, media *transport.MediaContent) ([]byte, error) {
	return f.data, f.err
}

func TestPersistWritesFileAndBuildsURL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewStore(nil, dir, "http://localhost:8080")
	fetcher := &fakeFetcher{data: []byte("payload")}

	stored, err := store.Persist(context.Background(), fetcher, &transport.MediaContent{Mime: "image/jpeg"}, "alpha")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasSuffix(stored.Filename, ".jpg") {
		t.Fatalf("expected .jpg extension, got %q", stored.Filename)
	}
	if stored.Bytes != int64(len("payload")) {
		t.Fatalf("unexpected size: %d", stored.Bytes)
	}
	if !strings.HasPrefix(stored.URL, "http://localhost:8080/uploads/alpha/") {
		t.Fatalf("unexpected url: %q", stored.URL)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "alpha", stored.Filename))
	if err != nil {
		t.Fatalf("expected file on disk, got %v", err)
	}
	if string(raw) != "payload" {
		t.Fatalf("unexpected file content: %q", raw)
	}
}

func TestPersistDownloadFailure(t *testing.T) {
	t.Parallel()

	store := NewStore(nil, t.TempDir(), "http://localhost:8080")
	fetcher := &fakeFetcher{err: errors.New("expired handle")}

	if _, err := store.Persist(context.Background(), fetcher, &transport.MediaContent{Mime: "image/png"}, "alpha"); err == nil {
		t.Fatalf("expected error on download failure")
	}
}

func TestPersistDefaultsMime(t *testing.T) {
	t.Parallel()

	store := NewStore(nil, t.TempDir(), "http://localhost:8080")
	fetcher := &fakeFetcher{data: []byte("x")}

	stored, err := store.Persist(context.Background(), fetcher, &transport.MediaContent{}, "alpha")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stored.Mime != "application/octet-stream" {
		t.Fatalf("unexpected mime: %q", stored.Mime)
	}
}

func TestExtensionForMime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mime string
		want string
	}{
		{"image/jpeg", ".jpg"},
		{"audio/ogg; codecs=opus", ".ogg"},
		{"application/zip", ".zip"},
		{"video/webm; codecs=vp9", ".webm"},
		{"garbage", ".bin"},
	}
	for _, tc := range cases {
		if got := extensionForMime(tc.mime); got != tc.want {
			t.Fatalf("extensionForMime(%q) = %q, want %q", tc.mime, got, tc.want)
		}
	}
}

func TestRemoveSessionUploads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewStore(nil, dir, "http://localhost:8080")
	fetcher := &fakeFetcher{data: []byte("x")}
	if _, err := store.Persist(context.Background(), fetcher, &transport.MediaContent{Mime: "image/png"}, "alpha"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := store.Remove("alpha"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "alpha")); !os.IsNotExist(err) {
		t.Fatalf("expected session uploads removed")
	}
}
