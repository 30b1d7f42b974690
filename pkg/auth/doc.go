// Package auth verifies the identity credential presented at the WebSocket
// handshake and on protected HTTP routes.
//
// Credentials are HS256 JSON Web Tokens issued by the platform's account
// service. The subject claim (or user_id when set) names the identity.
// Verification happens before any connection state is created: a request
// without a valid token never reaches the registry.
//
//	v, err := auth.NewJWT(cfg)
//	userID, err := v.Verify(ctx, token)
//
// Extractor pulls the raw token from a request. The default looks at the
// Authorization bearer header first and the "token" query parameter second,
// since browsers cannot set headers on a WebSocket upgrade.
package auth
