package mfa

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// DefaultQRSize is the edge length in pixels of rendered QR codes.
const DefaultQRSize = 256

// QRCodePNG renders uri as a PNG QR code and returns it base64 encoded.
func QRCodePNG(uri string, size int) (string, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	code, err := qr.Encode(uri, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("mfa: qr encode: %w", err)
	}
	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return "", fmt.Errorf("mfa: qr scale: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return "", fmt.Errorf("mfa: qr png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
