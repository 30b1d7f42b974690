package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/community"
)

const sampleSeed = `
identities:
  - id: alice
    name: Alice
    email: alice@example.com
    toggles:
      event: false
  - id: bob
    name: Bob
conversations:
  - id: general
    participants: [alice, bob]
    admins: [alice]
`

func TestParseSeed(t *testing.T) {
	t.Parallel()

	s, err := parseSeed([]byte(sampleSeed))
	require.NoError(t, err)

	ids := s.identities()
	require.Len(t, ids, 2)
	assert.Equal(t, "alice@example.com", ids[0].Addresses.Email)
	assert.False(t, ids[0].Allows(community.KindEvent))
	assert.Nil(t, ids[1].Toggles)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	convs := s.conversations(now)
	require.Len(t, convs, 1)
	assert.Equal(t, []string{"alice", "bob"}, convs[0].ParticipantIDs())
	assert.Equal(t, community.RoleAdmin, convs[0].Participants[0].Role)
	assert.Equal(t, community.RoleMember, convs[0].Participants[1].Role)
	assert.Equal(t, now, convs[0].Participants[1].JoinedAt)
}

func TestParseSeed_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"invalid yaml", "identities: ["},
		{"identity without id", "identities:\n  - name: x\n"},
		{"unknown kind", "identities:\n  - id: a\n    toggles:\n      spam: true\n"},
		{"conversation without id", "conversations:\n  - participants: [a]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseSeed([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestAppConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := appConfig{
		NotificationStore: backendMemory,
		Persistence:       backendMemory,
		Directory:         backendMemory,
		PresenceScope:     scopeGlobal,
		StoreCapacity:     100,
	}
	require.NoError(t, valid.validate())

	tests := []struct {
		name   string
		mutate func(*appConfig)
	}{
		{"store", func(c *appConfig) { c.NotificationStore = "kafka" }},
		{"persistence", func(c *appConfig) { c.Persistence = "postgres" }},
		{"directory", func(c *appConfig) { c.Directory = "ldap" }},
		{"scope", func(c *appConfig) { c.PresenceScope = "team" }},
		{"capacity", func(c *appConfig) { c.StoreCapacity = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}
