package pdf2md

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// jpegQuality balances payload size against glyph-edge artefacts.
const jpegQuality = 90

// encodedImage is one rendered page, compressed and base64-wrapped, ready
// to attach to a VLM message.
type encodedImage struct {
	data      string // standard-alphabet base64
	mediaType string // "image/png" or "image/jpeg"
}

// dataURI renders the image as an inline data URI for providers that take
// image URLs rather than raw bytes.
func (e encodedImage) dataURI() string {
	return "data:" + e.mediaType + ";base64," + e.data
}

// raw decodes the base64 payload back to compressed bytes.
func (e encodedImage) raw() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.data)
}

// encodeImage serialises a page bitmap in the configured format.
func encodeImage(img image.Image, format ImageFormat) (encodedImage, error) {
	var buf bytes.Buffer
	var mediaType string
	var err error

	switch format {
	case ImageJPEG:
		mediaType = "image/jpeg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	default:
		mediaType = "image/png"
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return encodedImage{}, fmt.Errorf("encode %s: %w", format, err)
	}

	return encodedImage{
		data:      base64.StdEncoding.EncodeToString(buf.Bytes()),
		mediaType: mediaType,
	}, nil
}

// downscale re-encodes the image at the given fraction of its current
// resolution. Used when a provider reports the request exceeded its context
// window: shrinking the image is cheaper than re-driving pdfium and has the
// same effect on the token count.
func (e encodedImage) downscale(factor float64) (encodedImage, error) {
	raw, err := e.raw()
	if err != nil {
		return encodedImage{}, err
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return encodedImage{}, fmt.Errorf("decode for downscale: %w", err)
	}

	b := src.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)

	format := ImagePNG
	if e.mediaType == "image/jpeg" {
		format = ImageJPEG
	}
	return encodeImage(dst, format)
}
