// Package pgdirectory reads identities, their notification toggles and
// delivery addresses from PostgreSQL.
//
// The schema ships as embedded goose migrations. Toggles are stored as a
// JSONB object keyed by notification kind; kinds missing from the object are
// allowed.
package pgdirectory
