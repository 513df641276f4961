package encoding

import (
	"math"
	"strings"

	"github.com/sqrl-go/sqrl/pkg/bigint"
)

// base56Alphabet excludes the visually ambiguous characters 1, l, I, O, 0.
const base56Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz"

const base56Radix = len(base56Alphabet)

// base56CharsPerByte is ceil(8 / log2(56)), used to size the zero-padded
// output.
var base56CharsPerByte = math.Ceil(8.0 / math.Log2(float64(base56Radix)))

// Base56Encode encodes b as a base56 string: the zero-padded digit string is
// built least-significant-digit-first by repeatedly dividing the magnitude
// by 56, then padded with the alphabet's zero character up to the expected
// length for len(b) bytes.
func Base56Encode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	n := bigint.NewFromBytes(b)
	var digits []byte
	for {
		rem := n.DivideBy(byte(base56Radix))
		digits = append(digits, base56Alphabet[rem])
		if n.IsZero() {
			break
		}
	}
	want := int(math.Ceil(float64(len(b)) * base56CharsPerByte))
	for len(digits) < want {
		digits = append(digits, base56Alphabet[0])
	}
	return string(digits)
}

// Base56Decode decodes a base56 string back to bytes. Characters outside the
// alphabet are skipped, matching the reference decoder's tolerance of
// grouping punctuation interspersed in printed identity strings.
func Base56Decode(s string) []byte {
	n := bigint.New()
	for i := len(s) - 1; i >= 0; i-- {
		idx := strings.IndexByte(base56Alphabet, s[i])
		if idx < 0 {
			continue
		}
		n.MultiplyBy(byte(base56Radix))
		n.Add(byte(idx))
	}
	return n.Bytes()
}
