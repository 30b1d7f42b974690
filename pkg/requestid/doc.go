// Package requestid attaches a correlation id to every HTTP request.
//
// Middleware reuses a well-formed X-Request-ID header or generates a UUID,
// stores it in the request context and echoes it in the response. Wire
// LoggerExtractor into the logger so every record written with the request
// context carries request_id.
package requestid
