// Package environment names the deployment environments pulse runs in and
// normalises the APP_ENV value read from configuration.
package environment

import "strings"

// Environment represents application environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Parse maps common spellings to an Environment. Unknown values resolve to
// Development so a missing APP_ENV never enables production-only behaviour.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	default:
		return Development
	}
}

// IsProduction reports whether env is production.
func (e Environment) IsProduction() bool { return e == Production }

// IsDevelopment reports whether env is development.
func (e Environment) IsDevelopment() bool { return e == Development }
