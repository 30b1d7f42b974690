// Package events defines the JSON envelopes exchanged over the persistent
// client connection.
//
// Every frame is {"event": name, "data": payload}. Outbound payloads are
// concrete structs in this package; inbound frames are decoded into Inbound
// and their Data is bound to the matching request type by the gateway.
package events
