package imagepipeline

import (
	"bytes"
	"image"

	"github.com/nfnt/resize"
	"github.com/rwcarlsen/goexif/exif"
)

// Orientation mirrors the teacher's ImageOrientation, narrowed to the two
// cases processProductImages cares about: does the image need a 90-degree
// correction before its dimensions are trusted.
type Orientation int

const (
	OrientationNormal Orientation = iota
	OrientationRotated
)

// ReadEXIFOrientation inspects the EXIF orientation tag, returning
// OrientationRotated for the four tag values (5-8) that mean the image was
// captured sideways relative to how it will display. Absent or unreadable
// EXIF data is not an error: most scraped product photos carry none, and
// the pipeline falls back to trusting the image's stored dimensions.
func ReadEXIFOrientation(data []byte) Orientation {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return OrientationNormal
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return OrientationNormal
	}
	value, err := tag.Int(0)
	if err != nil {
		return OrientationNormal
	}
	if value >= 5 && value <= 8 {
		return OrientationRotated
	}
	return OrientationNormal
}

// Resize decodes data and rescales it so its width is at most maxWidth,
// preserving aspect ratio via Lanczos3, the teacher's resize algorithm of
// choice. Images already at or under maxWidth wide pass through unresized;
// height is not checked. Returns the re-encoded bytes in the original format.
func Resize(data []byte, maxWidth int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxWidth {
		return data, nil
	}

	ratio := float64(maxWidth) / float64(width)
	newHeight := uint(float64(height) * ratio)
	resized := resize.Resize(uint(maxWidth), newHeight, img, resize.Lanczos3)

	return reencode(resized, format)
}
