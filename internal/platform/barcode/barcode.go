// Package barcode renders specimen barcodes as scannable Code 128 images.
package barcode

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
)

// EncodePNG renders value as a Code 128 barcode PNG of the given dimensions.
func EncodePNG(value string, width, height int) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("barcode: value is empty")
	}
	if width <= 0 {
		width = 300
	}
	if height <= 0 {
		height = 80
	}

	code, err := code128.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("barcode: encode %q: %w", value, err)
	}
	scaled, err := barcode.Scale(code, width, height)
	if err != nil {
		return nil, fmt.Errorf("barcode: scale: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("barcode: encode png: %w", err)
	}
	return buf.Bytes(), nil
}
