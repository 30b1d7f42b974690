// Package clientip resolves the originating client address of a request
// served behind reverse proxies.
//
// Headers are consulted in order and the first valid address wins. The
// default order is CF-Connecting-IP, X-Forwarded-For (leftmost valid entry),
// X-Real-IP, then RemoteAddr. Only trust forwarding headers when the server
// actually sits behind a proxy that overwrites them.
//
// The resolved address keys HTTP rate limits and the handshake logs of the
// websocket gateway.
package clientip
