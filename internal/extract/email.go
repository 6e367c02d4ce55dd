package extract

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrMalformedContact is returned when an obfuscated contact cannot be decoded.
var ErrMalformedContact = errors.New("malformed obfuscated contact")

// DecodeEmail reverses the single-byte XOR contact obfuscation. The input is the
// hex payload, optionally still attached to its link (anything up to and
// including the last '#' is dropped). The first byte is the key; every
// following byte XOR the key is one character of the address.
func DecodeEmail(protected string) (string, error) {
	encoded := protected
	if i := strings.LastIndexByte(encoded, '#'); i >= 0 {
		encoded = encoded[i+1:]
	}
	encoded = strings.TrimSpace(encoded)
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedContact, err)
	}
	if len(raw) < 1 {
		return "", fmt.Errorf("%w: missing key", ErrMalformedContact)
	}
	key := raw[0]
	out := make([]byte, len(raw)-1)
	for i, b := range raw[1:] {
		out[i] = b ^ key
	}
	return string(out), nil
}

// EncodeEmail obfuscates address with key, producing the hex payload DecodeEmail accepts.
func EncodeEmail(address string, key byte) string {
	raw := make([]byte, 0, len(address)+1)
	raw = append(raw, key)
	for i := 0; i < len(address); i++ {
		raw = append(raw, address[i]^key)
	}
	return hex.EncodeToString(raw)
}

// MailtoAddress extracts the address from a mailto: href. It returns "" for other schemes.
func MailtoAddress(href string) string {
	href = strings.TrimSpace(href)
	if len(href) < len("mailto:") || !strings.EqualFold(href[:len("mailto:")], "mailto:") {
		return ""
	}
	addr := href[len("mailto:"):]
	if i := strings.IndexByte(addr, '?'); i >= 0 {
		addr = addr[:i]
	}
	if unescaped, err := url.PathUnescape(addr); err == nil {
		addr = unescaped
	}
	return strings.TrimSpace(addr)
}

// ContactFromHref resolves an email from a link target: mailto links are read
// directly, obfuscated links are decoded. It returns "" when neither applies.
func ContactFromHref(href string) string {
	if addr := MailtoAddress(href); addr != "" {
		return addr
	}
	if strings.Contains(href, "email-protection#") {
		if addr, err := DecodeEmail(href); err == nil {
			return addr
		}
	}
	return ""
}

// FirstMailto returns the address of the first mailto link under sel.
func FirstMailto(sel *goquery.Selection) string {
	var addr string
	sel.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		addr = ContactFromHref(href)
		return addr == ""
	})
	return addr
}

// ProtectedEmail decodes the first element carrying a data-cfemail attribute under sel.
func ProtectedEmail(sel *goquery.Selection) string {
	payload, ok := sel.Find("[data-cfemail]").First().Attr("data-cfemail")
	if !ok {
		return ""
	}
	addr, err := DecodeEmail(payload)
	if err != nil {
		return ""
	}
	return addr
}
