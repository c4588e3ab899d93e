package slackbot

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

const userCacheTTL = 5 * time.Minute

// userDirectory maps lower-cased user, real and display names to user IDs.
// It is rebuilt from users.list at most once per TTL.
type userDirectory struct {
	mu      sync.Mutex
	byName  map[string]string
	builtAt time.Time
}

func (d *userDirectory) index(ctx context.Context, api *slack.Client) (map[string]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.byName != nil && time.Since(d.builtAt) < userCacheTTL {
		return d.byName, nil
	}
	members, err := api.GetUsersContext(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(members)*3)
	for _, m := range members {
		if m.Deleted || m.IsBot {
			continue
		}
		for _, n := range []string{m.Name, m.RealName, m.Profile.DisplayName} {
			key := normalizeName(n)
			if key == "" {
				continue
			}
			if _, taken := byName[key]; !taken {
				byName[key] = m.ID
			}
		}
	}
	d.byName = byName
	d.builtAt = time.Now()
	log.Printf("slack user directory rebuilt members=%d names=%d", len(members), len(byName))
	return byName, nil
}

// mentionIDs turns configured mentions (IDs or names) into user IDs. Names
// nobody answers to come back in unresolved. A directory fetch error still
// returns the literal IDs.
func (d *userDirectory) mentionIDs(ctx context.Context, api *slack.Client, mentions []string) (ids, unresolved []string, err error) {
	var names []string
	for _, m := range mentions {
		m = strings.TrimSpace(m)
		switch {
		case m == "":
		case isLikelySlackID(m):
			ids = append(ids, m)
		default:
			names = append(names, m)
		}
	}
	if len(names) == 0 {
		return dedupe(ids), nil, nil
	}

	byName, err := d.index(ctx, api)
	if err != nil {
		return dedupe(ids), names, err
	}
	for _, n := range names {
		if id, ok := byName[normalizeName(n)]; ok {
			ids = append(ids, id)
		} else {
			unresolved = append(unresolved, n)
		}
	}
	return dedupe(ids), unresolved, nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// isLikelySlackID matches user IDs such as U0123ABCD or W0123ABCD.
func isLikelySlackID(val string) bool {
	if len(val) < 9 || (val[0] != 'U' && val[0] != 'W') {
		return false
	}
	for _, r := range val[1:] {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func dedupe(vals []string) []string {
	seen := make(map[string]bool, len(vals))
	out := vals[:0]
	for _, v := range vals {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
