// Package api is the REST surface of pulse.
//
// It serves notification dispatch and history, message fan-out for the
// persistence service, read receipts, health probes, Prometheus metrics and
// mounts the websocket gateway. Every error uses the JSON envelope of
// pkg/handler and every response carries X-Request-ID.
//
// Routes:
//
//	POST  /notifications/send
//	GET   /notifications/user/{id}?limit=&unread=
//	PATCH /notifications/read/{id}
//	GET   /notifications/stats
//	POST  /messages/dispatch
//	POST  /messages/{id}/read
//	GET   /healthz, /readyz, /metrics
//	GET   /ws
package api
