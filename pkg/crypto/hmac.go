package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"
)

// HMACSHA256 computes the HMAC-SHA256 of message under key. It derives a
// per-site secret from the master key and the site's host string: SEC =
// HMAC-SHA256(key=MK, msg=host).
func HMACSHA256(key, message []byte) [KeySize]byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	var result [KeySize]byte
	copy(result[:], h.Sum(nil))
	return result
}

// HMACSHA256Slice computes the HMAC-SHA256 and returns it as a slice.
func HMACSHA256Slice(key, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	return h.Sum(nil)
}

// NewHMACSHA256 returns a new hash.Hash for computing HMAC-SHA256
// incrementally, e.g. over a multi-line client_string/server_string pair.
func NewHMACSHA256(key []byte) hash.Hash {
	return hmac.New(sha256.New, key)
}

// HMACEqual compares two MACs for equality in constant time. Used instead of
// bytes.Equal to prevent timing attacks when verifying a nut MAC.
func HMACEqual(mac1, mac2 []byte) bool {
	return hmac.Equal(mac1, mac2)
}
