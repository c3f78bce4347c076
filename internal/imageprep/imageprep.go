// Package imageprep validates bet-slip screenshots before upload.
//
// Validation is purely local and happens before any network call: the file
// must be present, decodable as an image, and under the size cap. Images
// within bounds are forwarded byte-for-byte unmodified; only oversized
// screenshots are downscaled and re-encoded so the upload stays accepted by
// the backend.
package imageprep

import (
	"bytes"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"github.com/slipsight/slipsight/internal/domain"

	// Register decoders for the screenshot formats users actually upload.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	// MaxUploadBytes caps what we accept from the browser form.
	MaxUploadBytes = 10 * 1024 * 1024

	// MaxDimension is the longest edge beyond which a screenshot is
	// downscaled before upload. Phone screenshots rarely exceed this.
	MaxDimension = 2400

	// reencodeQuality for downscaled slips. Text on slips stays legible
	// well above this.
	reencodeQuality = 85
)

// Prepared is a screenshot that passed validation.
type Prepared struct {
	Filename    string
	ContentType string
	Data        []byte
	Downscaled  bool
}

// Prepare validates raw upload bytes and returns them ready for submission.
//
// Returns an EINVALID domain error for missing or undecodable input and an
// ETOOLARGE error when the upload exceeds MaxUploadBytes even before decode.
func Prepare(filename, contentType string, r io.Reader) (*Prepared, error) {
	const op = "imageprep.prepare"

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to read upload")
	}
	if len(data) == 0 {
		return nil, domain.Invalid(op, "Please select a betting slip image")
	}
	if len(data) > MaxUploadBytes {
		return nil, domain.Errorf(domain.ETOOLARGE, op, "Image must be under %d MB", MaxUploadBytes/(1024*1024))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "File is not a readable image (PNG, JPG, WebP, or GIF)")
	}

	bounds := img.Bounds()
	if bounds.Dx() <= MaxDimension && bounds.Dy() <= MaxDimension {
		return &Prepared{
			Filename:    filename,
			ContentType: sniffContentType(contentType, format),
			Data:        data,
		}, nil
	}

	// Oversized: fit within MaxDimension on the long edge, preserve aspect.
	fitted := imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(reencodeQuality)); err != nil {
		return nil, domain.Internal(err, op, "failed to downscale image")
	}

	return &Prepared{
		Filename:    filename,
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
		Downscaled:  true,
	}, nil
}

// sniffContentType prefers the browser-provided type, falling back to the
// decoded format.
func sniffContentType(provided, format string) string {
	if provided != "" {
		return provided
	}
	switch format {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
