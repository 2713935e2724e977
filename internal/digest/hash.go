package digest

import (
	"crypto/md5" //nolint:gosec // MD5 is mandated by the digest hash chain
	"encoding/hex"
	"strings"
)

// CredentialHash computes H1 over the username, realm and shared secret.
func CredentialHash(username, realm, secret string) string {
	return md5Hex(username, realm, secret)
}

// RequestHash computes H2 over the HTTP method and the request path.
// uri must not include the query string.
func RequestHash(method, uri string) string {
	return md5Hex(method, uri)
}

// ResponseHash computes R, the value a client must present for nonce.
func ResponseHash(h1, nonce, h2 string) string {
	return md5Hex(h1, nonce, h2)
}

// md5Hex joins fields with ':' and returns the hex MD5 digest.
func md5Hex(fields ...string) string {
	sum := md5.Sum([]byte(strings.Join(fields, ":"))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
