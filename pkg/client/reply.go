package client

import (
	"errors"
	"strings"

	"github.com/sqrl-go/sqrl/pkg/encoding"
)

// ErrInvalidReply is returned when a server reply is missing one of its
// required fields or isn't validly base64url/CRLF encoded.
var ErrInvalidReply = errors.New("client: invalid server reply")

// reply is a parsed server response body.
type reply struct {
	raw []byte // the decoded body, kept verbatim as the next server_string.

	ver string
	tif TIF
	nut string
	qry string
	suk string
	vuk string
	ask string
	url string
}

// parseReply base64url-decodes body and parses it as CRLF key=value lines.
func parseReply(body []byte) (*reply, error) {
	decoded, err := encoding.Base64URLDecode(string(body))
	if err != nil {
		return nil, ErrInvalidReply
	}

	r := &reply{raw: decoded}
	var haveVer, haveTIF, haveQry, haveNut bool

	for _, line := range strings.Split(string(decoded), "\r\n") {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "ver":
			r.ver = value
			haveVer = true
		case "tif":
			tif, err := parseTIF(value)
			if err != nil {
				return nil, ErrInvalidReply
			}
			r.tif = tif
			haveTIF = true
		case "nut":
			r.nut = value
			haveNut = true
		case "qry":
			r.qry = value
			haveQry = true
		case "suk":
			r.suk = value
		case "vuk":
			r.vuk = value
		case "ask":
			r.ask = value
		case "url":
			r.url = value
		}
	}

	if !haveVer || !haveTIF || !haveQry || !haveNut {
		return nil, ErrInvalidReply
	}
	return r, nil
}
