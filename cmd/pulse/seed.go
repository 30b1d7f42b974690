package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/pulse/pkg/community"
)

// seedFile describes identities and conversations for the in-memory
// collaborators used in development.
type seedFile struct {
	Identities []struct {
		ID        string          `yaml:"id"`
		Name      string          `yaml:"name"`
		Avatar    string          `yaml:"avatar"`
		Email     string          `yaml:"email"`
		Phone     string          `yaml:"phone"`
		PushToken string          `yaml:"push_token"`
		Toggles   map[string]bool `yaml:"toggles"`
	} `yaml:"identities"`
	Conversations []struct {
		ID           string   `yaml:"id"`
		Participants []string `yaml:"participants"`
		Admins       []string `yaml:"admins"`
	} `yaml:"conversations"`
}

func parseSeed(raw []byte) (seedFile, error) {
	var s seedFile
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return seedFile{}, fmt.Errorf("parse seed: %w", err)
	}
	for _, id := range s.Identities {
		if id.ID == "" {
			return seedFile{}, fmt.Errorf("parse seed: identity without id")
		}
		for kind := range id.Toggles {
			if !community.Kind(kind).Valid() {
				return seedFile{}, fmt.Errorf("parse seed: identity %q: unknown kind %q", id.ID, kind)
			}
		}
	}
	for _, c := range s.Conversations {
		if c.ID == "" {
			return seedFile{}, fmt.Errorf("parse seed: conversation without id")
		}
	}
	return s, nil
}

func loadSeed(path string) (seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return seedFile{}, fmt.Errorf("read seed: %w", err)
	}
	return parseSeed(raw)
}

func (s seedFile) identities() []community.Identity {
	out := make([]community.Identity, 0, len(s.Identities))
	for _, id := range s.Identities {
		var toggles map[community.Kind]bool
		if len(id.Toggles) > 0 {
			toggles = make(map[community.Kind]bool, len(id.Toggles))
			for k, v := range id.Toggles {
				toggles[community.Kind(k)] = v
			}
		}
		out = append(out, community.Identity{
			UserID:      id.ID,
			DisplayName: id.Name,
			Avatar:      id.Avatar,
			Toggles:     toggles,
			Addresses: community.Addresses{
				PushToken: id.PushToken,
				Email:     id.Email,
				Phone:     id.Phone,
			},
		})
	}
	return out
}

func (s seedFile) conversations(now time.Time) []community.Conversation {
	out := make([]community.Conversation, 0, len(s.Conversations))
	for _, c := range s.Conversations {
		conv := community.Conversation{ID: c.ID}
		for _, userID := range c.Participants {
			role := community.RoleMember
			for _, admin := range c.Admins {
				if admin == userID {
					role = community.RoleAdmin
				}
			}
			conv.Participants = append(conv.Participants, community.Participant{
				UserID:   userID,
				Role:     role,
				JoinedAt: now,
			})
		}
		out = append(out, conv)
	}
	return out
}
