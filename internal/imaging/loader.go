// Package imaging provides the raster primitives shared by the detection
// pipeline: loading and saving, grayscale preprocessing, adaptive
// thresholding, and perspective warping of detected regions.
package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"os"

	"github.com/disintegration/imaging"
)

// Load reads and decodes an image file.
//
// Supported formats are PNG, JPEG, and GIF. JPEG orientation metadata is
// honored so photographs taken with a rotated camera come out upright.
//
// Returns an error if the file does not exist or is not a decodable image;
// a malformed input image is the one systemic failure of the detection
// path, everything downstream degrades per candidate instead.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}
	return img, nil
}

// Decode reads an image from a stream, e.g. an HTTP upload body.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Save encodes an image to disk. The format is chosen from the file
// extension (.png, .jpg, .gif).
func Save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image %s: %w", path, err)
	}
	return nil
}

// Clone returns a mutable NRGBA copy of the image. Candidates hand out
// read-only crops; annotation always draws on a clone.
func Clone(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
