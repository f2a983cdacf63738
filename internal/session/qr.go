package session

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// renderQRImage encodes a QR payload as a PNG data URI so the dashboard
// can show it directly in an <img> tag. Returns "" when encoding fails;
// the raw code string is still published for client-side rendering.
func renderQRImage(code string) string {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
