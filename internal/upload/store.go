// Package upload stores validated uploads on disk and turns them into chat
// messages through the Bridge.
package upload

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tyrowin/minichat/internal/room"
)

const maxOriginalNameLength = 255

// allowedTypes maps sniffed MIME types to the media kind they are posted as.
var allowedTypes = map[string]room.MediaKind{
	"image/png":                room.MediaImage,
	"image/jpeg":               room.MediaImage,
	"image/gif":                room.MediaImage,
	"image/webp":               room.MediaImage,
	"application/pdf":          room.MediaFile,
	"text/plain":               room.MediaFile,
	"application/json":         room.MediaFile,
	"application/zip":          room.MediaFile,
	"application/gzip":         room.MediaFile,
	"application/x-gzip":       room.MediaFile,
	"application/msword":       room.MediaFile,
	"application/vnd.ms-excel": room.MediaFile,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": room.MediaFile,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       room.MediaFile,
}

// Config configures a Store.
type Config struct {
	Dir       string
	MaxBytes  int64
	URLPrefix string
}

// Stored describes an accepted blob.
type Stored struct {
	Ref          string         `json:"ref"`
	MediaKind    room.MediaKind `json:"mediaKind"`
	ContentType  string         `json:"contentType"`
	OriginalName string         `json:"name"`
	Size         int64          `json:"size"`
}

// Store enforces the size ceiling and content-type allow-list and writes accepted
// uploads under Dir with a random name.
type Store struct {
	dir      string
	maxBytes int64
	prefix   string
	logger   *zap.Logger
}

// NewStore creates the upload directory if needed.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if cfg.MaxBytes <= 0 {
		return nil, fmt.Errorf("upload size limit must be positive, got %d", cfg.MaxBytes)
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/uploads/"
	}
	if !strings.HasSuffix(cfg.URLPrefix, "/") {
		cfg.URLPrefix += "/"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Store{
		dir:      cfg.Dir,
		maxBytes: cfg.MaxBytes,
		prefix:   cfg.URLPrefix,
		logger:   logger.Named("upload"),
	}, nil
}

// Dir returns the directory blobs are written to.
func (s *Store) Dir() string {
	return s.dir
}

// MaxBytes returns the upload ceiling.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Save reads at most MaxBytes from r, checks the content type and writes the blob.
func (s *Store) Save(originalName string, r io.Reader) (Stored, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return Stored{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return Stored{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.maxBytes)
	}
	if len(data) == 0 {
		return Stored{}, ErrEmptyUpload
	}

	detected := mimetype.Detect(data)
	contentType, kind, ok := classify(detected)
	if !ok {
		return Stored{}, fmt.Errorf("%w: %s", ErrUnsupportedType, detected.String())
	}

	filename := uuid.NewString() + detected.Extension()
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return Stored{}, fmt.Errorf("write upload: %w", err)
	}

	stored := Stored{
		Ref:          s.prefix + filename,
		MediaKind:    kind,
		ContentType:  contentType,
		OriginalName: cleanOriginalName(originalName),
		Size:         int64(len(data)),
	}
	s.logger.Info("upload stored",
		zap.String("ref", stored.Ref),
		zap.String("type", contentType),
		zap.Int64("size", stored.Size))
	return stored, nil
}

// Lookup resolves a client-supplied reference to a stored blob and reports the
// media kind its content sniffs as.
func (s *Store) Lookup(ref string) (room.MediaKind, bool) {
	path, ok := s.pathFor(ref)
	if !ok {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", false
	}
	_, kind, ok := classify(detected)
	return kind, ok
}

// Remove deletes a stored blob. Unknown references are ignored.
func (s *Store) Remove(ref string) {
	path, ok := s.pathFor(ref)
	if !ok {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("remove upload", zap.String("ref", ref), zap.Error(err))
	}
}

func (s *Store) pathFor(ref string) (string, bool) {
	if !strings.HasPrefix(ref, s.prefix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, s.prefix)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", false
	}
	return filepath.Join(s.dir, name), true
}

// classify maps the sniffed type to a media kind. Parents are not consulted so
// text/html is not accepted through its text/plain parent.
func classify(detected *mimetype.MIME) (string, room.MediaKind, bool) {
	base, _, err := mime.ParseMediaType(detected.String())
	if err != nil {
		return "", "", false
	}
	kind, ok := allowedTypes[base]
	return base, kind, ok
}

func cleanOriginalName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '"' {
			return -1
		}
		return r
	}, name)
	if name == "." || name == "/" {
		name = ""
	}
	for len(name) > maxOriginalNameLength {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}
