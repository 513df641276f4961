package client

import "strings"

// Recognized opt= tokens (§10 supplemented feature: client-side opt=
// tokens the embedder may request on outbound requests).
const (
	OptSQRLOnly = "sqrlonly"
	OptHardlock = "hardlock"
	OptCPS      = "cps"
	OptSUK      = "suk"
)

// ParseOptions splits a tilde-joined opt= value into its tokens. Unknown
// tokens are kept rather than rejected — SqrlServer.cpp's tolerant token
// scan treats an unrecognized opt= token as something to ignore, not an
// error, since the set of tokens a server understands may grow over time.
func ParseOptions(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, "~")
}

// hasOption reports whether token appears in opts.
func hasOption(opts []string, token string) bool {
	for _, o := range opts {
		if o == token {
			return true
		}
	}
	return false
}

func joinOptions(opts []string) string {
	return strings.Join(opts, "~")
}
