// Package media mirrors remote poster images into local storage.
package media

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/upstream"
)

// DefaultMaxBytes caps a mirrored image.
const DefaultMaxBytes = 5 << 20

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9-]`)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Image is a mirrored image and its thumbnail, as URLs under the media
// base URL. ThumbnailURL is empty when the format could not be decoded.
type Image struct {
	LocalURL     string
	ThumbnailURL string
}

// Mirror downloads images through an upstream client, so the URL safety
// checks and the size cap apply to every download.
type Mirror struct {
	client   *upstream.Client
	dir      string
	baseURL  string
	maxBytes int64
}

func NewMirror(client *upstream.Client, dir, baseURL string, maxBytes int64) *Mirror {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Mirror{
		client:   client,
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
	}
}

// Dir is the directory mirrored files are written to.
func (m *Mirror) Dir() string { return m.dir }

// Mirror stores imageURL for the anime id. An image that is already on
// disk is not downloaded again.
func (m *Mirror) Mirror(ctx context.Context, id, imageURL string) (*Image, error) {
	name := unsafeName.ReplaceAllString(id, "_")
	if name == "" {
		return nil, fmt.Errorf("invalid anime id %q", id)
	}
	if img, ok := m.existing(name); ok {
		return img, nil
	}

	data, contentType, err := m.client.GetBytes(ctx, imageURL, m.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to download image for %s: %w", id, err)
	}
	ext, err := extensionFor(contentType)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, err
	}
	file := name + ext
	if err := writeFile(filepath.Join(m.dir, file), data); err != nil {
		return nil, err
	}
	img := &Image{LocalURL: m.baseURL + "/" + file}

	thumb, err := GenerateThumbnail(data)
	if err != nil {
		logging.Debug().Err(err).Str("anime_id", id).Msg("Skipping thumbnail")
		return img, nil
	}
	thumbFile := name + "_thumb.jpg"
	if err := writeFile(filepath.Join(m.dir, thumbFile), thumb); err != nil {
		return nil, err
	}
	img.ThumbnailURL = m.baseURL + "/" + thumbFile
	return img, nil
}

func (m *Mirror) existing(name string) (*Image, bool) {
	for _, ext := range []string{".jpg", ".png", ".gif", ".webp"} {
		file := name + ext
		if _, err := os.Stat(filepath.Join(m.dir, file)); err != nil {
			continue
		}
		img := &Image{LocalURL: m.baseURL + "/" + file}
		thumbFile := name + "_thumb.jpg"
		if _, err := os.Stat(filepath.Join(m.dir, thumbFile)); err == nil {
			img.ThumbnailURL = m.baseURL + "/" + thumbFile
		}
		return img, true
	}
	return nil, false
}

func extensionFor(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: bad content type %q", upstream.ErrPartialData, contentType)
	}
	ext, ok := extensions[mediaType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported image type %q", upstream.ErrPartialData, mediaType)
	}
	return ext, nil
}

// writeFile writes through a temp file so readers never see a partial image.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
