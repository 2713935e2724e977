// Package client is the Go SDK for the stock API.
//
// It wraps the /v1 stock and sales endpoints and answers HTTP digest
// challenges transparently when credentials are configured:
//
//	c, err := client.New("http://localhost:8000",
//	    client.WithCredentials("tinikov", "SU(3)group"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := c.AddStock(ctx, "widget", 5); err != nil {
//	    log.Fatal(err)
//	}
//	err = c.Sell(ctx, client.Sale{Name: "widget", Amount: 2, Price: 1.5})
//
// # Digest handshake
//
// A request that comes back 401 with a WWW-Authenticate challenge is retried
// once with a computed response. The last nonce is remembered and sent
// proactively on later requests; servers that make nonces single-use simply
// answer with a new challenge, which the client then follows.
//
// # Errors
//
// The server never says why a mutation failed. Any 400 surfaces as
// ErrRejected, a 401 that survives the handshake as ErrUnauthorized.
package client
