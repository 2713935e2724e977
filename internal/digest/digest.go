// Package digest implements the HTTP Digest style challenge/response gate.
//
// The server never sees the shared secret on the wire. It issues a random
// nonce in a WWW-Authenticate challenge and the client answers with
//
//	H1 = MD5(username:realm:secret)
//	H2 = MD5(method:uri)
//	R  = MD5(H1:nonce:H2)
//
// The Authenticator recomputes R from its CredentialStore and accepts the
// request only on an exact match.
//
// By default the protocol is stateless: issued nonces are not remembered, so
// a captured response can be replayed for as long as the secret is unchanged.
// Attaching a NonceTracker (MemoryNonceTracker or RedisNonceTracker) makes
// every nonce single-use and limits it to nonces this server issued.
package digest
