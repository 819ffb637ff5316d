// Package blob stores uploaded chat images on local disk and hands out
// reference paths the chat messages point at.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/nfnt/resize"
)

// DefaultPrefix is the URL path uploaded images are served under.
const DefaultPrefix = "/uploads/"

// DefaultMaxPixels bounds the decoded size of jpeg and png uploads.
const DefaultMaxPixels = 40_000_000

var (
	ErrTooLarge        = errors.New("image exceeds the upload size limit")
	ErrUnsupportedType = errors.New("image type is not allowed")
	ErrInvalidRef      = errors.New("not an upload reference")
)

type Options struct {
	Dir          string
	Prefix       string
	MaxBytes     int64
	MaxWidth     uint
	MaxPixels    int
	AllowedTypes []string
}

// DiskStore keeps one file per upload, named by a random UUID plus the
// extension of the detected type.
type DiskStore struct {
	dir      string
	prefix   string
	maxBytes int64
	maxWidth  uint
	maxPixels int
	allowed   []string
	log       *slog.Logger
}

func NewDiskStore(opts Options, log *slog.Logger) (*DiskStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if !strings.HasSuffix(opts.Prefix, "/") {
		opts.Prefix += "/"
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("internal/blob: create %s: %w", opts.Dir, err)
	}

	return &DiskStore{
		dir:       opts.Dir,
		prefix:    opts.Prefix,
		maxBytes:  opts.MaxBytes,
		maxWidth:  opts.MaxWidth,
		maxPixels: opts.MaxPixels,
		allowed:   opts.AllowedTypes,
		log:       log,
	}, nil
}

// Dir is where uploads live, for serving them over HTTP.
func (s *DiskStore) Dir() string { return s.dir }

// Prefix is the URL path prefix every reference starts with.
func (s *DiskStore) Prefix() string { return s.prefix }

// Put validates and stores an image, returning its reference.
func (s *DiskStore) Put(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("internal/blob: read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), s.allowed...) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	data, err = s.downscale(ctx, data, mt)
	if err != nil {
		return "", err
	}

	name := uuid.NewString() + mt.Extension()
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("internal/blob: write %s: %w", name, err)
	}

	return s.prefix + name, nil
}

// downscale shrinks still jpeg and png images wider than maxWidth. GIFs may be
// animated and webp has no encoder here, so both are kept as uploaded. A jpeg
// or png whose header claims more than maxPixels is rejected before decoding.
func (s *DiskStore) downscale(ctx context.Context, data []byte, mt *mimetype.MIME) ([]byte, error) {
	if !mt.Is("image/jpeg") && !mt.Is("image/png") {
		return data, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable %s", ErrUnsupportedType, mt.String())
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(s.maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, s.maxPixels)
	}
	if uint(cfg.Width) <= s.maxWidth {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable %s", ErrUnsupportedType, mt.String())
	}

	// Height 0 keeps the aspect ratio.
	resized := resize.Resize(s.maxWidth, 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if mt.Is("image/png") {
		err = png.Encode(&buf, resized)
	} else {
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return nil, fmt.Errorf("internal/blob: encode resized image: %w", err)
	}

	s.log.DebugContext(ctx, "downscaled upload",
		"type", mt.String(),
		"from_width", cfg.Width,
		"to_width", s.maxWidth)

	return buf.Bytes(), nil
}

// Valid reports whether ref names an upload that is currently on disk.
func (s *DiskStore) Valid(ref string) bool {
	name, err := s.fileName(ref)
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil && info.Mode().IsRegular()
}

// Delete removes the file behind ref. A file that is already gone is not an
// error.
func (s *DiskStore) Delete(ref string) error {
	name, err := s.fileName(ref)
	if err != nil {
		return err
	}

	err = os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("internal/blob: delete %s: %w", ref, err)
	}

	return nil
}

func (s *DiskStore) fileName(ref string) (string, error) {
	if !strings.HasPrefix(ref, s.prefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}

	name := strings.TrimPrefix(ref, s.prefix)
	if name == "" || name != path.Base(name) || name == "." || name == ".." || strings.ContainsRune(name, '\\') {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}

	return name, nil
}
