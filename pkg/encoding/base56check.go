package encoding

import (
	"crypto/sha256"
	"strings"

	"github.com/sqrl-go/sqrl/pkg/bigint"
)

// base56CheckLineData is the number of base56 data characters per checked
// line; each line grows by one check character on output.
const base56CheckLineData = 19

// Base56CheckEncode base56-encodes b, then breaks the result into
// 19-character lines and appends a check digit to each: the check digit is
// SHA256(line || lineIndex) reduced mod 56 and mapped through the base56
// alphabet, where lineIndex is a single byte counting lines from zero. This
// lets a reader (or a client re-typing a rescue code) catch a single
// mistyped character per line without needing the rest of the identity.
func Base56CheckEncode(b []byte) string {
	encoded := Base56Encode(b)
	if encoded == "" {
		return ""
	}
	var out strings.Builder
	for lineIndex := 0; ; lineIndex++ {
		start := lineIndex * base56CheckLineData
		if start >= len(encoded) {
			break
		}
		end := start + base56CheckLineData
		if end > len(encoded) {
			end = len(encoded)
		}
		line := encoded[start:end]
		out.WriteString(line)
		out.WriteByte(base56Alphabet[base56CheckDigit(line, lineIndex)])
	}
	return out.String()
}

// Base56CheckDecode reverses Base56CheckEncode, verifying each line's check
// digit. It returns ok=false on the first line whose check digit doesn't
// match, naming the 0-based line number that failed.
func Base56CheckDecode(s string) (data []byte, ok bool, badLine int) {
	var plain strings.Builder
	for lineIndex := 0; ; lineIndex++ {
		start := lineIndex * (base56CheckLineData + 1)
		if start >= len(s) {
			break
		}
		end := start + base56CheckLineData + 1
		if end > len(s) {
			end = len(s)
		}
		chunk := s[start:end]
		if len(chunk) < 2 {
			return nil, false, lineIndex
		}
		line := chunk[:len(chunk)-1]
		checkChar := chunk[len(chunk)-1]
		want := base56Alphabet[base56CheckDigit(line, lineIndex)]
		if checkChar != want {
			return nil, false, lineIndex
		}
		plain.WriteString(line)
	}
	return Base56Decode(plain.String()), true, -1
}

// base56CheckDigit computes SHA256(line || byte(lineIndex)) mod 56.
func base56CheckDigit(line string, lineIndex int) byte {
	h := sha256.New()
	h.Write([]byte(line))
	h.Write([]byte{byte(lineIndex)})
	sum := h.Sum(nil)
	n := bigint.NewFromBytes(sum)
	return n.DivideBy(byte(base56Radix))
}
