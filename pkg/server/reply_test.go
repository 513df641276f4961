package server

import (
	"strings"
	"testing"

	"github.com/sqrl-go/sqrl/pkg/encoding"
)

func TestReplyBuilderBuildProducesDecodableCRLFBody(t *testing.T) {
	r := &ReplyBuilder{
		Qry:    "/cli.sqrl?nut=abc",
		TIF:    TIFIDMatch | TIFIPMatch,
		Nut:    []byte("0123456789abcdef"),
		MACKey: []byte("reply-mac-key"),
	}
	encoded := r.Build()

	decoded, err := encoding.Base64URLDecode(encoded)
	if err != nil {
		t.Fatalf("Base64URLDecode: %v", err)
	}
	body := string(decoded)

	if !strings.Contains(body, "ver=1\r\n") {
		t.Fatalf("missing ver= line: %q", body)
	}
	if !strings.Contains(body, "tif=5\r\n") {
		t.Fatalf("expected tif=5 (ID_MATCH|IP_MATCH), got %q", body)
	}
	if !strings.Contains(body, "qry=/cli.sqrl?nut=abc\r\n") {
		t.Fatalf("missing qry= line: %q", body)
	}
	if !strings.Contains(body, "mac=") {
		t.Fatalf("missing mac= line: %q", body)
	}
}

func TestReplyBuilderOmitsEmptyOptionalFields(t *testing.T) {
	r := &ReplyBuilder{
		Qry:    "/cli.sqrl",
		TIF:    0,
		Nut:    []byte("0123456789abcdef"),
		MACKey: []byte("k"),
	}
	decoded, err := encoding.Base64URLDecode(r.Build())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	body := string(decoded)
	if strings.Contains(body, "suk=") || strings.Contains(body, "ask=") || strings.Contains(body, "url=") {
		t.Fatalf("expected no optional fields, got %q", body)
	}
}
