package report

import (
	"net/url"
	"strings"
)

// DefaultShareBase opens the WhatsApp share sheet.
const DefaultShareBase = "https://wa.me/"

// ShareLink builds a deep link carrying the report as the "text" query value.
func ShareLink(base, text string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultShareBase
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "text=" + url.QueryEscape(text)
}
