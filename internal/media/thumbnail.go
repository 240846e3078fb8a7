package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"github.com/nfnt/resize"
)

const thumbnailWidth uint = 225
const thumbnailHeight uint = 320

// GenerateThumbnail decodes imageData and returns a JPEG that fits the
// poster thumbnail box.
func GenerateThumbnail(imageData []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var resized image.Image
	if img.Bounds().Dy() > img.Bounds().Dx() {
		resized = resize.Resize(thumbnailWidth, 0, img, resize.Lanczos3)
	} else {
		resized = resize.Resize(0, thumbnailHeight, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
