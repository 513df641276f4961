// Package encoding implements the base-N text encodings used on the wire and
// in S4 identity files: SQRL's unpadded base64url variant, base56, and
// base56-check (base56 with a per-line SHA-256 check digit), plus URL
// percent-encoding for query-string values.
package encoding

import "encoding/base64"

// base64URL is the standard base64url alphabet with padding stripped, which
// is exactly the variant SQRL uses on the wire and in S4 files: no '+', '/',
// or '=' ever appears in a SQRL base64url string.
var base64URL = base64.RawURLEncoding

// Base64URLEncode encodes b using SQRL's unpadded base64url alphabet.
func Base64URLEncode(b []byte) string {
	return base64URL.EncodeToString(b)
}

// Base64URLDecode decodes a SQRL base64url string back to bytes. Unlike the
// base56 decoder, it does not skip unknown characters: a malformed string is
// rejected outright, matching the reference client's treatment of the wire
// format.
func Base64URLDecode(s string) ([]byte, error) {
	return base64URL.DecodeString(s)
}
