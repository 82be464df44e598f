package util

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
)

// SniffMimeHTTP detects the image MIME type from magic bytes.
func SniffMimeHTTP(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8 {
		return "image/jpeg"
	}
	if len(b) >= 8 &&
		b[0] == 0x89 && b[1] == 0x50 && b[2] == 0x4E && b[3] == 0x47 &&
		b[4] == 0x0D && b[5] == 0x0A && b[6] == 0x1A && b[7] == 0x0A {
		return "image/png"
	}
	if len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WEBP" {
		return "image/webp"
	}
	if len(b) > 0 {
		if ct := http.DetectContentType(b); strings.HasPrefix(ct, "image/") {
			return ct
		}
	}
	return "application/octet-stream"
}

// IsImageMIME reports whether mime is one of the formats the vision APIs accept.
func IsImageMIME(mime string) bool {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/png", "image/webp", "image/gif":
		return true
	}
	return false
}

// PickMIME prefers an explicit image MIME, otherwise sniffs the bytes.
func PickMIME(explicit string, data []byte) string {
	if exp := strings.ToLower(strings.TrimSpace(explicit)); IsImageMIME(exp) {
		return exp
	}
	return SniffMimeHTTP(data)
}

func MakeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func SHA256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
