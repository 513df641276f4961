// Package uri parses the two URI forms the core accepts: sqrl:// challenge
// URLs and file:// identity-file locations.
package uri

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/sqrl-go/sqrl/pkg/encoding"
)

// Scheme identifies which of the two accepted schemes a URI was parsed from.
type Scheme int

const (
	SchemeInvalid Scheme = iota
	SchemeSQRL
	SchemeFile
)

// ErrInvalid is returned for anything that isn't a well-formed sqrl:// or
// file:// URI, including an sqrl:// URI missing its required sfn= query
// parameter.
var ErrInvalid = errors.New("uri: invalid SQRL URI")

// URI is a parsed sqrl:// or file:// location.
type URI struct {
	raw       string
	scheme    Scheme
	httpsForm string
	parsed    *url.URL
	sfn       []byte
}

// Parse parses raw as a sqrl:// or file:// URI, lowercasing only the scheme.
// Any other scheme, or an sqrl:// URI without sfn=, is rejected.
func Parse(raw string) (*URI, error) {
	i := strings.Index(raw, "://")
	if i <= 0 {
		return nil, ErrInvalid
	}
	scheme := strings.ToLower(raw[:i])

	switch scheme {
	case "file":
		return &URI{raw: raw, scheme: SchemeFile}, nil
	case "sqrl":
		return parseSQRL(raw, i)
	default:
		return nil, ErrInvalid
	}
}

// parseSQRL substitutes the literal scheme with "https" — verbatim, so query
// parameter order is preserved exactly — and parses the result for
// structured access to host/path/query.
func parseSQRL(raw string, schemeEnd int) (*URI, error) {
	httpsForm := "https" + raw[schemeEnd:]
	parsed, err := url.Parse(httpsForm)
	if err != nil || parsed.Host == "" {
		return nil, ErrInvalid
	}
	sfnParam := parsed.Query().Get("sfn")
	if sfnParam == "" {
		return nil, ErrInvalid
	}
	sfn, err := encoding.Base64URLDecode(sfnParam)
	if err != nil {
		return nil, ErrInvalid
	}
	return &URI{raw: raw, scheme: SchemeSQRL, httpsForm: httpsForm, parsed: parsed, sfn: sfn}, nil
}

// Scheme reports which scheme this URI was parsed from.
func (u *URI) Scheme() Scheme { return u.scheme }

// IsFile reports whether this is a file:// URI.
func (u *URI) IsFile() bool { return u.scheme == SchemeFile }

// FilePath returns the path portion of a file:// URI.
func (u *URI) FilePath() string {
	if u.scheme != SchemeFile {
		return ""
	}
	return u.raw[len("file://"):]
}

// GetChallenge returns the original input, scheme preserved.
func (u *URI) GetChallenge() string { return u.raw }

// GetURL substitutes the sqrl:// scheme with https:// verbatim.
func (u *URI) GetURL() string { return u.httpsForm }

// GetPrefix returns "https://host[:port]".
func (u *URI) GetPrefix() string {
	return u.parsed.Scheme + "://" + u.parsed.Host
}

// Host returns the bare hostname, without port, path, or the x= extension
// GetSiteKey folds in — the "H" a client session combines with GetAltIdentity
// as H+"+"+A when forming the per-site key derivation input.
func (u *URI) Host() string { return u.parsed.Hostname() }

// GetSiteKey returns host, or host + "/" + the first n characters of path
// (path taken without its leading slash) when the query carries x=<n>.
func (u *URI) GetSiteKey() string {
	host := u.parsed.Hostname()
	ext := u.pathExtension()
	if ext == "" {
		return host
	}
	return host + "/" + ext
}

// pathExtension returns the first n characters of the path (leading slash
// stripped) named by an x=<n> query parameter, or "" if absent.
func (u *URI) pathExtension() string {
	n, err := strconv.Atoi(u.parsed.Query().Get("x"))
	if err != nil || n <= 0 {
		return ""
	}
	path := strings.TrimPrefix(u.parsed.Path, "/")
	if n > len(path) {
		n = len(path)
	}
	return path[:n]
}

// GetSFN returns the base64url-decoded server friendly name.
func (u *URI) GetSFN() []byte { return u.sfn }

// GetAltIdentity returns the same x=<n>-selected path prefix GetSiteKey
// folds into the host, or "" if x= is absent — the "A" tag a client session
// appends to the host as "host+A" when forming per-site keys.
func (u *URI) GetAltIdentity() string { return u.pathExtension() }
