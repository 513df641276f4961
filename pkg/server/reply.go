package server

import (
	"strconv"
	"strings"

	"github.com/sqrl-go/sqrl/pkg/crypto"
	"github.com/sqrl-go/sqrl/pkg/encoding"
)

// TIF is the Transaction Information Flags bitfield a ReplyBuilder emits.
// Mirrors pkg/client.TIF's bit layout; kept as an independent type since
// the server and client packages have no reason to import each other.
type TIF uint16

const (
	TIFIDMatch              TIF = 1 << 0
	TIFPreviousIDMatch      TIF = 1 << 1
	TIFIPMatch              TIF = 1 << 2
	TIFSQRLDisabled         TIF = 1 << 3
	TIFFunctionNotSupported TIF = 1 << 4
	TIFTransientError       TIF = 1 << 5
	TIFCommandFailure       TIF = 1 << 6
	TIFClientFailure        TIF = 1 << 7
)

// ReplyBuilder assembles a server response: ver/nut/tif/qry plus the
// optional suk/ask/url lines, MAC-protected and base64url-encoded.
type ReplyBuilder struct {
	Ver string
	Qry string
	TIF TIF
	Nut []byte
	SUK []byte
	Ask string
	URL string

	MACKey []byte
}

// Build assembles the CRLF body, appends an HMAC-SHA256 MAC over it, and
// base64url-encodes the whole thing for transport.
func (r *ReplyBuilder) Build() string {
	var b strings.Builder
	ver := r.Ver
	if ver == "" {
		ver = "1"
	}
	b.WriteString("ver=" + ver + "\r\n")
	b.WriteString("nut=" + encoding.Base64URLEncode(r.Nut) + "\r\n")
	b.WriteString("tif=" + strings.ToUpper(strconv.FormatUint(uint64(r.TIF), 16)) + "\r\n")
	b.WriteString("qry=" + r.Qry + "\r\n")
	if len(r.SUK) > 0 {
		b.WriteString("suk=" + encoding.Base64URLEncode(r.SUK) + "\r\n")
	}
	if r.Ask != "" {
		b.WriteString("ask=" + r.Ask + "\r\n")
	}
	if r.URL != "" {
		b.WriteString("url=" + r.URL + "\r\n")
	}

	body := b.String()
	mac := crypto.HMACSHA256Slice(r.MACKey, []byte(body))
	body += "mac=" + encoding.Base64URLEncode(mac[:16]) + "\r\n"

	return encoding.Base64URLEncode([]byte(body))
}
