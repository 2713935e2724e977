package digest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedHeader is returned when a header value is not a sequence of
// key="value" tokens.
var ErrMalformedHeader = errors.New("malformed digest header")

// Reply holds the fields a client sends back in answer to a challenge.
type Reply struct {
	Username string
	Nonce    string
	Response string
}

// ParseAuthorization extracts username, nonce and response from an
// Authorization header value. Tokens are separated by single spaces and may
// carry a trailing comma. Tokens for other keys (realm, uri, the "Digest"
// scheme word) are ignored. Every extracted value must be a double-quoted
// literal; it is never interpreted beyond stripping the quotes.
func ParseAuthorization(header string) (*Reply, error) {
	r := &Reply{}
	for _, tok := range strings.Split(header, " ") {
		key, raw, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}

		var dst *string
		switch key {
		case "username":
			dst = &r.Username
		case "nonce":
			dst = &r.Nonce
		case "response":
			dst = &r.Response
		default:
			continue
		}

		v, err := unquote(strings.TrimSuffix(raw, ","))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		*dst = v
	}
	return r, nil
}

// FormatChallenge renders the WWW-Authenticate value for a fresh nonce.
func FormatChallenge(realm, nonce string) string {
	return fmt.Sprintf(`Digest realm="%s",nonce="%s"`, realm, nonce)
}

// ParseChallenge reads realm and nonce back out of a WWW-Authenticate value
// produced by FormatChallenge.
func ParseChallenge(value string) (realm, nonce string, err error) {
	rest, ok := strings.CutPrefix(value, "Digest ")
	if !ok {
		return "", "", fmt.Errorf("scheme: %w", ErrMalformedHeader)
	}
	for _, part := range strings.Split(rest, ",") {
		key, raw, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return "", "", ErrMalformedHeader
		}
		v, err := unquote(raw)
		if err != nil {
			return "", "", fmt.Errorf("%s: %w", key, err)
		}
		switch key {
		case "realm":
			realm = v
		case "nonce":
			nonce = v
		}
	}
	if nonce == "" {
		return "", "", fmt.Errorf("nonce missing: %w", ErrMalformedHeader)
	}
	return realm, nonce, nil
}

// Answer builds the Authorization header value a client sends for the given
// challenge. The server only reads username, nonce and response; realm and
// uri are included for the benefit of proxies and logs.
func Answer(username, secret, realm, method, uri, nonce string) string {
	h1 := CredentialHash(username, realm, secret)
	h2 := RequestHash(method, uri)
	return fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		username, realm, nonce, uri, ResponseHash(h1, nonce, h2))
}

// unquote strips one pair of surrounding double quotes. Anything else,
// including an embedded quote or backslash, is rejected.
func unquote(raw string) (string, error) {
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return "", ErrMalformedHeader
	}
	inner := raw[1 : len(raw)-1]
	if strings.ContainsAny(inner, "\"\\") {
		return "", ErrMalformedHeader
	}
	return inner, nil
}
