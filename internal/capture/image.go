package capture

import (
	"bytes"
	"mime"
	"strings"

	"github.com/franckalain/livestockweight/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rwcarlsen/goexif/exif"
)

// MaxImageBytes is the largest capture accepted
const MaxImageBytes = 10 << 20

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// Image is a capture as selected by the user
type Image struct {
	Name        string
	ContentType string // declared type; sniffed from Data when empty
	Data        []byte
}

// ValidationError is a local input problem with a user-facing message
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// validateImage returns the effective content type of img or a ValidationError
func validateImage(img Image) (string, error) {
	contentType := strings.ToLower(strings.TrimSpace(img.ContentType))
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			contentType = mt
		}
	} else if len(img.Data) > 0 {
		contentType = mimetype.Detect(img.Data).String()
	}

	if !allowedTypes[contentType] {
		return "", &ValidationError{Message: "Please choose a JPEG, PNG or WebP image."}
	}
	if len(img.Data) == 0 {
		return "", &ValidationError{Message: "The selected image is empty."}
	}
	if len(img.Data) > MaxImageBytes {
		return "", &ValidationError{Message: "The image must be 10 MB or smaller."}
	}
	return contentType, nil
}

// extractGPS reads the capture location from EXIF, if present
func extractGPS(data []byte) *models.GPS {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	lat, long, err := x.LatLong()
	if err != nil {
		return nil
	}
	return &models.GPS{Latitude: lat, Longitude: long}
}

// exifOrientation returns the EXIF orientation tag, 1 when absent
func exifOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}
