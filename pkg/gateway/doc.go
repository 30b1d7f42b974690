// Package gateway terminates client WebSocket sessions.
//
// A session is admitted only after the credential on the upgrade request
// verifies. The gateway then registers the connection (which may publish an
// online transition), joins every conversation the identity takes part in
// and sends connection_stats. Inbound frames are routed to rooms, typing and
// receipts; rejected requests get an error event and the session stays
// open. When the socket closes, the connection is closed first and then
// removed from every room and from the registry.
//
// Wire format is JSON text frames shaped as {"event": "...", "data": {...}}.
package gateway
