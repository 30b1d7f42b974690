// Package email sends transactional email for the notification email channel.
//
// Sender is the provider-agnostic contract. Postmark delivers in production;
// FileSender writes each message to disk for local development. New picks one
// from Config: Postmark when both tokens are present, FileSender otherwise.
//
// HTML bodies are produced by templ components from the templates subpackage
// and rendered to a string with templates.Render before sending.
package email
