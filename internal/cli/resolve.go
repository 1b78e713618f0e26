package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stanzahq/stanza/internal/config"
	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/models"
)

const maxSuggestions = 5

func shortID(id string) string {
	const limit = 8
	if len(id) <= limit {
		return id
	}
	return id[:limit]
}

// findProfile resolves a user by exact id, exact username, or unique id or
// username prefix.
func findProfile(ctx context.Context, repo *db.ProfileRepository, ref string) (*models.Profile, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("user id or username required")
	}

	profile, err := repo.Get(ctx, ref)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, db.ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profiles, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	matches := matchProfiles(profiles, ref)
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("user '%s' is ambiguous; matches: %s (use the full id)", ref, formatProfileMatches(matches))
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("user '%s' not found (no profiles registered yet)", ref)
	}
	return nil, fmt.Errorf("user '%s' not found. Example input: '%s' or '%s'", ref, profiles[0].Username, shortID(profiles[0].ID))
}

func matchProfiles(profiles []*models.Profile, ref string) []*models.Profile {
	lowered := strings.ToLower(ref)
	for _, profile := range profiles {
		if strings.ToLower(profile.Username) == lowered {
			return []*models.Profile{profile}
		}
	}

	var matches []*models.Profile
	for _, profile := range profiles {
		if strings.HasPrefix(profile.ID, ref) || strings.HasPrefix(strings.ToLower(profile.Username), lowered) {
			matches = append(matches, profile)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Username < matches[j].Username })
	return matches
}

func formatProfileMatches(profiles []*models.Profile) string {
	names := make([]string, 0, maxSuggestions)
	for i, profile := range profiles {
		if i == maxSuggestions {
			names = append(names, fmt.Sprintf("+%d more", len(profiles)-maxSuggestions))
			break
		}
		names = append(names, fmt.Sprintf("%s (%s)", profile.Username, shortID(profile.ID)))
	}
	return strings.Join(names, ", ")
}

// findConversation resolves one of the viewer's conversations by id, id
// prefix, or the other participant's username. An empty ref falls back to
// the conversation saved in the CLI context.
func findConversation(summaries []*models.ConversationSummary, ref string) (*models.ConversationSummary, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		saved, err := config.NewContextStore(GetConfig().ContextPath()).Load()
		if err != nil || saved.ConversationID == "" {
			return nil, errors.New("conversation required: pass an id or username, or run 'stanza chat open <user>'")
		}
		ref = saved.ConversationID
	}

	lowered := strings.ToLower(ref)
	var matches []*models.ConversationSummary
	for _, summary := range summaries {
		if summary.ID == ref {
			return summary, nil
		}
		if summary.Other != nil && strings.ToLower(summary.Other.Username) == lowered {
			return summary, nil
		}
		if strings.HasPrefix(summary.ID, ref) {
			matches = append(matches, summary)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		if len(summaries) == 0 {
			return nil, fmt.Errorf("conversation '%s' not found (no conversations yet)", ref)
		}
		return nil, fmt.Errorf("conversation '%s' not found", ref)
	default:
		ids := make([]string, 0, len(matches))
		for _, match := range matches {
			ids = append(ids, shortID(match.ID))
		}
		if len(ids) > maxSuggestions {
			ids = append(ids[:maxSuggestions], fmt.Sprintf("+%d more", len(matches)-maxSuggestions))
		}
		return nil, fmt.Errorf("conversation '%s' is ambiguous; matches: %s", ref, strings.Join(ids, ", "))
	}
}
