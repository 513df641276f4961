package crypto

import "crypto/sha256"

// EnHash runs 16 rounds of t ← SHA-256(t), starting from input, accumulating
// out ← out XOR t on every round. The result is the XOR sum across all 16
// rounds, not the final round's hash alone: this is what makes EnHash
// resistant to length-extension-style shortcuts that a plain iterated hash
// would be vulnerable to.
func EnHash(input []byte) [KeySize]byte {
	var out [KeySize]byte
	t := make([]byte, KeySize)
	copy(t, input)
	for i := 0; i < 16; i++ {
		sum := sha256.Sum256(t)
		for j := range out {
			out[j] ^= sum[j]
		}
		copy(t, sum[:])
	}
	return out
}

// EnHashSlice is EnHash returning a slice instead of an array.
func EnHashSlice(input []byte) []byte {
	out := EnHash(input)
	return out[:]
}
