package encoding

import "github.com/sqrl-go/sqrl/pkg/bigint"

// RescueCodeDigits is the fixed length of a rescue code: a 24-digit decimal
// string reduced from at least 256 bits of entropy.
const RescueCodeDigits = 24

// RescueCodeEncode reduces b (expected to be 32 bytes, ≥256 bits of
// entropy) to a RescueCodeDigits-digit decimal string: exactly
// RescueCodeDigits successive base-10 divisions of the magnitude, each
// remainder appended as it's produced. Unlike Base56Encode this never
// checks for an early zero remainder and never pads — it always runs
// exactly RescueCodeDigits divisions.
func RescueCodeEncode(b []byte) string {
	n := bigint.NewFromBytes(b)
	digits := make([]byte, RescueCodeDigits)
	for i := range digits {
		digits[i] = '0' + n.DivideBy(10)
	}
	return string(digits)
}
