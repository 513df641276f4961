package server

import (
	"errors"
	"strings"

	"github.com/sqrl-go/sqrl/pkg/crypto"
	"github.com/sqrl-go/sqrl/pkg/encoding"
)

// Markers substituted into a challenge-link template.
const (
	markerSFN = "_LIBSQRL_SFN_"
	markerNut = "_LIBSQRL_NUT_"
)

// ErrMACMismatch is returned by Verify when the trailing mac= doesn't match.
var ErrMACMismatch = errors.New("server: mac mismatch")

// LinkBuilder substitutes a site's friendly name and a fresh nut into a
// URL template, then appends an HMAC-SHA256 MAC over everything before it
// so a tampered link is detectable without a database round-trip.
type LinkBuilder struct {
	template     string
	friendlyName string
	macKey       []byte
	metrics      *Metrics
}

// NewLinkBuilder builds a LinkBuilder. template must contain
// _LIBSQRL_SFN_ and _LIBSQRL_NUT_ markers; macKey is the HMAC key (a
// server-side secret; DeriveMACKey derives it from the same passcode that
// keys the nut engine).
func NewLinkBuilder(template, friendlyName string, macKey []byte, metrics *Metrics) *LinkBuilder {
	return &LinkBuilder{template: template, friendlyName: friendlyName, macKey: macKey, metrics: metrics}
}

// Build substitutes the markers with base64url(friendlyName) and
// base64url(nut), then appends "&mac=" + base64url(HMAC-SHA256(key,
// url)[:16]).
func (b *LinkBuilder) Build(nut []byte) string {
	url := b.template
	url = strings.ReplaceAll(url, markerSFN, encoding.Base64URLEncode([]byte(b.friendlyName)))
	url = strings.ReplaceAll(url, markerNut, encoding.Base64URLEncode(nut))

	mac := crypto.HMACSHA256Slice(b.macKey, []byte(url))
	return url + "&mac=" + encoding.Base64URLEncode(mac[:16])
}

// Verify splits url at its trailing "&mac=" and checks the MAC in constant
// time against the URL prefix.
func (b *LinkBuilder) Verify(url string) bool {
	i := strings.LastIndex(url, "&mac=")
	if i < 0 {
		b.metrics.macVerified("mac_mismatch")
		return false
	}
	prefix, macPart := url[:i], url[i+len("&mac="):]
	mac, err := encoding.Base64URLDecode(macPart)
	if err != nil {
		b.metrics.macVerified("mac_mismatch")
		return false
	}
	expected := crypto.HMACSHA256Slice(b.macKey, []byte(prefix))
	ok := crypto.HMACEqual(expected[:16], mac)
	if ok {
		b.metrics.macVerified("ok")
	} else {
		b.metrics.macVerified("mac_mismatch")
	}
	return ok
}
