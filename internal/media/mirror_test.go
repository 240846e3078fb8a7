package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/anime-sync/internal/upstream"
)

func pngPoster(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 450, 640))
	for x := 0; x < 450; x++ {
		img.Set(x, x%640, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestMirror(t *testing.T, handler http.Handler, maxBytes int64) (*Mirror, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := upstream.NewClient("media", upstream.Options{AllowPrivateHosts: true, Policy: upstream.Policy{MaxAttempts: 1}})
	return NewMirror(client, t.TempDir(), "/media/anime/", maxBytes), server.URL
}

func TestMirrorWritesImageAndThumbnail(t *testing.T) {
	poster := pngPoster(t)
	var hits atomic.Int32
	m, url := newTestMirror(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(poster)
	}), 0)

	img, err := m.Mirror(context.Background(), "al-42", url+"/poster.png")
	require.NoError(t, err)
	assert.Equal(t, "/media/anime/al-42.png", img.LocalURL)
	assert.Equal(t, "/media/anime/al-42_thumb.jpg", img.ThumbnailURL)

	thumb, err := os.ReadFile(filepath.Join(m.Dir(), "al-42_thumb.jpg"))
	require.NoError(t, err)
	decoded, _, err := image.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, int(thumbnailWidth), decoded.Bounds().Dx())

	again, err := m.Mirror(context.Background(), "al-42", url+"/poster.png")
	require.NoError(t, err)
	assert.Equal(t, img, again)
	assert.Equal(t, int32(1), hits.Load(), "existing files are not downloaded again")
}

func TestMirrorKeepsUndecodableImageWithoutThumbnail(t *testing.T) {
	m, url := newTestMirror(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		w.Write([]byte("RIFF....WEBPVP8 "))
	}), 0)

	img, err := m.Mirror(context.Background(), "1", url+"/poster.webp")
	require.NoError(t, err)
	assert.Equal(t, "/media/anime/1.webp", img.LocalURL)
	assert.Empty(t, img.ThumbnailURL)
}

func TestMirrorRejectsOversizedAndNonImages(t *testing.T) {
	m, url := newTestMirror(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/page.html" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html></html>"))
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(make([]byte, 2048))
	}), 1024)

	_, err := m.Mirror(context.Background(), "1", url+"/big.jpg")
	assert.Error(t, err)
	_, err = m.Mirror(context.Background(), "1", url+"/page.html")
	assert.ErrorIs(t, err, upstream.ErrPartialData)

	entries, err := os.ReadDir(m.Dir())
	if err == nil {
		assert.Empty(t, entries)
	}
}
