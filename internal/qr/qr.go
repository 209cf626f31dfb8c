package qr

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the pixel width of generated QR images
const DefaultSize = 256

// ShareURL builds the public gallery link guests reach by scanning the code
func ShareURL(baseURL, slug string) string {
	return fmt.Sprintf("%s/e/%s", strings.TrimRight(baseURL, "/"), slug)
}

// PNG renders a QR code for the given URL
func PNG(url string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode QR code")
	}
	return png, nil
}
