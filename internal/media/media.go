// Package media persists inbound attachments to the local uploads tree and
// computes their publicly reachable URLs.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wagatehq/wagate/internal/transport"
)

// MaxAttachmentBytes is the largest attachment Persist accepts.
const MaxAttachmentBytes int64 = 200 * 1024 * 1024

// Fetcher resolves a lazy media handle into raw bytes. The transport client
// satisfies this.
type Fetcher interface {
	Download(ctx context.Context, media *transport.MediaContent) ([]byte, error)
}

// Stored describes one persisted attachment.
type Stored struct {
	URL      string
	Filename string
	Mime     string
	Bytes    int64
}

// Store writes attachments under a per-session directory below baseDir and
// joins publicHost with the relative path to build reachable URLs.
type Store struct {
	baseDir    string
	publicHost string
	logger     *slog.Logger
}

// NewStore creates a media store rooted at baseDir.
func NewStore(log *slog.Logger, baseDir, publicHost string) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		baseDir:    baseDir,
		publicHost: publicHost,
		logger:     log.With(slog.String("component", "media")),
	}
}

// Persist downloads the attachment and writes it with a collision-resistant
// filename. Any fetch or write failure is returned to the caller, who is
// expected to degrade rather than abort.
func (s *Store) Persist(ctx context.Context, fetcher Fetcher, media *transport.MediaContent, sessionName string) (Stored, error) {
	if media == nil {
		return Stored{}, fmt.Errorf("no media content")
	}
	if sessionName == "" {
		sessionName = "default"
	}

	mime := media.Mime
	if mime == "" {
		mime = "application/octet-stream"
	}

	data, err := fetcher.Download(ctx, media)
	if err != nil {
		return Stored{}, fmt.Errorf("download media: %w", err)
	}
	if len(data) == 0 {
		return Stored{}, fmt.Errorf("empty media payload")
	}
	if int64(len(data)) > MaxAttachmentBytes {
		return Stored{}, fmt.Errorf("media payload exceeds %d bytes", MaxAttachmentBytes)
	}

	dir := filepath.Join(s.baseDir, sessionName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stored{}, fmt.Errorf("create upload dir: %w", err)
	}

	filename := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], extensionForMime(mime))
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return Stored{}, fmt.Errorf("write media file: %w", err)
	}

	publicURL, err := url.JoinPath(s.publicHost, "uploads", sessionName, filename)
	if err != nil {
		return Stored{}, fmt.Errorf("build media url: %w", err)
	}

	s.logger.Debug("media persisted",
		slog.String("session", sessionName),
		slog.String("file", filename),
		slog.Int("bytes", len(data)),
	)
	return Stored{
		URL:      publicURL,
		Filename: filename,
		Mime:     mime,
		Bytes:    int64(len(data)),
	}, nil
}

// Remove deletes the upload directory for a session. Used on session purge.
func (s *Store) Remove(sessionName string) error {
	if strings.TrimSpace(sessionName) == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(s.baseDir, sessionName))
}

var mimeExtensions = map[string]string{
	"image/jpeg":               ".jpg",
	"image/png":                ".png",
	"image/webp":               ".webp",
	"video/mp4":                ".mp4",
	"audio/ogg; codecs=opus":   ".ogg",
	"audio/mpeg":               ".mp3",
	"application/pdf":          ".pdf",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
}

// extensionForMime maps a MIME type to a file extension, falling back to the
// MIME subtype when the type is not in the static table.
func extensionForMime(mime string) string {
	if ext, ok := mimeExtensions[mime]; ok {
		return ext
	}
	_, subtype, ok := strings.Cut(mime, "/")
	if !ok || subtype == "" {
		return ".bin"
	}
	subtype, _, _ = strings.Cut(subtype, ";")
	if subtype == "" {
		return ".bin"
	}
	return "." + subtype
}
