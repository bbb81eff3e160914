package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// Decoders for every format a screenshot may arrive in
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// minOCRWidth is the crop width below which regions are upscaled before OCR.
const minOCRWidth = 600

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// decodeImage decodes any registered format and fills in missing dimensions.
func decodeImage(src *SourceImage) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	if src.Width <= 0 || src.Height <= 0 {
		src.Width, src.Height = b.Dx(), b.Dy()
	}
	if src.MimeType == "" {
		src.MimeType = "image/" + format
	}
	return img, nil
}

// cropPNG cuts box out of img and encodes it as PNG.
func cropPNG(img image.Image, box BoundingBox) ([]byte, error) {
	origin := img.Bounds().Min
	r := box.Rect().Add(origin).Intersect(img.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("region %v lies outside the image", box)
	}

	var sub image.Image
	if si, ok := img.(subImager); ok {
		sub = si.SubImage(r)
	} else {
		dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
		draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
		sub = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, sub); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

// upscaleForOCR enlarges small crops so Tesseract sees legible glyphs. Images
// already wide enough are returned unchanged.
func upscaleForOCR(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode crop: %w", err)
	}
	b := img.Bounds()
	if b.Dx() >= minOCRWidth || b.Dx() == 0 {
		return data, nil
	}

	scale := (minOCRWidth + b.Dx() - 1) / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode upscaled crop: %w", err)
	}
	return buf.Bytes(), nil
}

// DetectImageMimeType detects the image type from magic bytes. It returns ""
// for anything that is not a supported image.
func DetectImageMimeType(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return "image/jpeg"
	}

	// GIF: 'G' 'I' 'F' '8' ('7' or '9') 'a'
	if bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")) {
		return "image/gif"
	}

	// WebP: 'R' 'I' 'F' 'F' .... 'W' 'E' 'B' 'P'
	if len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}

	// TIFF: little-endian or big-endian header
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	// BMP: 'B' 'M'
	if bytes.HasPrefix(data, []byte("BM")) {
		return "image/bmp"
	}

	return ""
}
