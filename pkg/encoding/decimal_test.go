package encoding

import "testing"

func TestRescueCodeEncodeLength(t *testing.T) {
	for _, n := range []int{1, 4, 16, 32} {
		got := RescueCodeEncode(make([]byte, n))
		if len(got) != RescueCodeDigits {
			t.Fatalf("RescueCodeEncode(%d zero bytes) length = %d, want %d", n, len(got), RescueCodeDigits)
		}
		for _, c := range got {
			if c < '0' || c > '9' {
				t.Fatalf("RescueCodeEncode produced non-digit %q", c)
			}
		}
	}
}

// TestRescueCodeEncodeDigitOrder checks the least-significant-digit-first,
// no-padding, no-reversal order by hand-dividing a known value.
func TestRescueCodeEncodeDigitOrder(t *testing.T) {
	// 255 = 25*10+5, 25 = 2*10+5, 2 = 0*10+2, then 21 more divisions of
	// zero each emit '0'.
	got := RescueCodeEncode([]byte{0xFF})
	zeros := ""
	for i := 0; i < 21; i++ {
		zeros += "0"
	}
	want := "552" + zeros
	if got != want {
		t.Fatalf("RescueCodeEncode(0xFF) = %q, want %q", got, want)
	}
}

func TestRescueCodeEncodeDeterministic(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04}
	if RescueCodeEncode(b) != RescueCodeEncode(append([]byte(nil), b...)) {
		t.Fatal("RescueCodeEncode is not deterministic for equal inputs")
	}
}
