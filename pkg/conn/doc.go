// Package conn is the server-side handle for one live client session.
//
// A Conn owns a bounded outbound queue drained by Run. Send never blocks: a
// full queue marks the connection unhealthy and closes it, which in turn
// triggers the ordinary disconnect cleanup in the gateway. TrySend is the
// lossy variant used for ephemeral signals such as typing indicators.
package conn
