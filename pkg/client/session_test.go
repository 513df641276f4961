package client

import (
	"strings"
	"testing"

	"github.com/sqrl-go/sqrl/pkg/crypto"
	"github.com/sqrl-go/sqrl/pkg/encoding"
	"github.com/sqrl-go/sqrl/pkg/uri"
	"github.com/sqrl-go/sqrl/pkg/useridentity"
)

func readyUserWithIUK(t *testing.T, fill byte) (*useridentity.User, []byte) {
	t.Helper()
	u := useridentity.New()
	iuk := make([]byte, crypto.KeySize)
	for i := range iuk {
		iuk[i] = fill
	}
	if err := u.Rekey(iuk); err != nil {
		t.Fatalf("Rekey: %v", err)
	}
	return u, iuk
}

func mustParseURI(t *testing.T, raw string) *uri.URI {
	t.Helper()
	u, err := uri.Parse(raw)
	if err != nil {
		t.Fatalf("uri.Parse(%q): %v", raw, err)
	}
	return u
}

// buildReplyBody constructs a base64url-encoded CRLF server reply.
func buildReplyBody(t *testing.T, fields map[string]string, order []string) []byte {
	t.Helper()
	var b strings.Builder
	for _, k := range order {
		v, ok := fields[k]
		if !ok {
			continue
		}
		b.WriteString(k + "=" + v + "\r\n")
	}
	return []byte(encoding.Base64URLEncode([]byte(b.String())))
}

func TestSessionStartBuildsInitialQuery(t *testing.T) {
	u, _ := readyUserWithIUK(t, 0x11)
	target := mustParseURI(t, "sqrl://example.com/auth?nut=abc&sfn=RXhhbXBsZQ")

	s := NewSession(target, u, KindIdent, nil, nil)
	reqURL, body, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if reqURL != target.GetURL() {
		t.Fatalf("reqURL = %q, want %q", reqURL, target.GetURL())
	}
	if s.State() != StateAwaitingReply {
		t.Fatalf("State() = %v, want StateAwaitingReply", s.State())
	}

	bodyStr := string(body)
	if !strings.Contains(bodyStr, "client=") || !strings.Contains(bodyStr, "server=") || !strings.Contains(bodyStr, "ids=") {
		t.Fatalf("body missing expected fields: %s", bodyStr)
	}

	clientB64 := strings.TrimPrefix(strings.SplitN(bodyStr, "&", 2)[0], "client=")
	clientString, err := encoding.Base64URLDecode(clientB64)
	if err != nil {
		t.Fatalf("decode client_string: %v", err)
	}
	if !strings.HasPrefix(string(clientString), "ver=1\r\ncmd=query\r\n") {
		t.Fatalf("client_string = %q", clientString)
	}
}

func TestSessionIdentSucceedsOnDirectIDMatch(t *testing.T) {
	u, _ := readyUserWithIUK(t, 0x22)
	target := mustParseURI(t, "sqrl://example.com/cli.sqrl?nut=abc&sfn=RXhhbXBsZQ")

	s := NewSession(target, u, KindIdent, nil, nil)
	if _, _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply1 := buildReplyBody(t, map[string]string{
		"ver": "1",
		"tif": "5", // ID_MATCH | IP_MATCH
		"nut": "nut2",
		"qry": "/cli.sqrl?nut=nut2",
	}, []string{"ver", "tif", "nut", "qry"})

	reqURL, body, done, err := s.HandleReply(reply1)
	if err != nil {
		t.Fatalf("HandleReply (query->ident): %v", err)
	}
	if done {
		t.Fatal("expected session to continue into ident, not finish yet")
	}
	if !strings.Contains(reqURL, "/cli.sqrl?nut=nut2") {
		t.Fatalf("reqURL = %q", reqURL)
	}
	clientB64 := strings.TrimPrefix(strings.SplitN(string(body), "&", 2)[0], "client=")
	clientString, _ := encoding.Base64URLDecode(clientB64)
	if !strings.Contains(string(clientString), "cmd=ident") {
		t.Fatalf("expected cmd=ident after identity match, got %q", clientString)
	}

	reply2 := buildReplyBody(t, map[string]string{
		"ver": "1",
		"tif": "1", // ID_MATCH
		"nut": "nut3",
		"qry": "/cli.sqrl?nut=nut3",
	}, []string{"ver", "tif", "nut", "qry"})

	_, _, done, err = s.HandleReply(reply2)
	if err != nil {
		t.Fatalf("HandleReply (ident success): %v", err)
	}
	if !done {
		t.Fatal("expected session to finish after ident success")
	}
	if s.State() != StateSuccess {
		t.Fatalf("State() = %v, want StateSuccess", s.State())
	}
}

func TestSessionFailsOnCommandFailure(t *testing.T) {
	u, _ := readyUserWithIUK(t, 0x33)
	target := mustParseURI(t, "sqrl://example.com/cli.sqrl?nut=abc&sfn=RXhhbXBsZQ")

	s := NewSession(target, u, KindIdent, nil, nil)
	if _, _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply := buildReplyBody(t, map[string]string{
		"ver": "1",
		"tif": "40", // COMMAND_FAILURE
		"nut": "nut2",
		"qry": "/cli.sqrl?nut=nut2",
	}, []string{"ver", "tif", "nut", "qry"})

	_, _, done, err := s.HandleReply(reply)
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if !done || s.State() != StateFailed {
		t.Fatalf("done=%v state=%v, want done=true state=Failed", done, s.State())
	}
}

func TestSessionFallsBackToPreviousIdentity(t *testing.T) {
	u, _ := readyUserWithIUK(t, 0x44)
	// Rekey once more so PIUK(0) holds the previous identity's IUK.
	newIUK := make([]byte, crypto.KeySize)
	for i := range newIUK {
		newIUK[i] = 0x55
	}
	if err := u.Rekey(newIUK); err != nil {
		t.Fatalf("second Rekey: %v", err)
	}

	target := mustParseURI(t, "sqrl://example.com/cli.sqrl?nut=abc&sfn=RXhhbXBsZQ")
	s := NewSession(target, u, KindIdent, nil, nil)
	if _, _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	noMatch := buildReplyBody(t, map[string]string{
		"ver": "1",
		"tif": "0",
		"nut": "nut2",
		"qry": "/cli.sqrl?nut=nut2",
	}, []string{"ver", "tif", "nut", "qry"})

	_, body, done, err := s.HandleReply(noMatch)
	if err != nil {
		t.Fatalf("HandleReply (no match): %v", err)
	}
	if done {
		t.Fatal("expected the session to retry with a previous identity")
	}
	clientB64 := strings.TrimPrefix(strings.SplitN(string(body), "&", 2)[0], "client=")
	clientString, _ := encoding.Base64URLDecode(clientB64)
	if !strings.Contains(string(clientString), "pidk=") {
		t.Fatalf("expected pidk= in retry request, got %q", clientString)
	}
	if s.previousIdentityIndex != 0 {
		t.Fatalf("previousIdentityIndex = %d, want 0", s.previousIdentityIndex)
	}
}
