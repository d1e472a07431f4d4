package whatsapp

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

func renderTerminalQR(code string) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return
	}
	fmt.Printf("\n\x1b[36m╔══════════════════════════════════╗\n║          SCAN QR CODE          ║\n╚══════════════════════════════════╝\n\x1b[0m\n%s\n\x1b[36mScan this QR code with your WhatsApp mobile app\x1b[0m\n\n", qr.ToSmallString(false))
}
