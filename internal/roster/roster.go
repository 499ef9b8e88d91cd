// Package roster serves the list of rescue teams available for assignment.
package roster

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/spf13/cast"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

// Team is one available rescue team member.
type Team struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// Name is the display name, falling back to the id.
func (t Team) Name() string {
	n := strings.TrimSpace(t.FirstName + " " + t.LastName)
	if n == "" {
		return t.ID
	}
	return n
}

// TeamFromRaw decodes a backend roster entry. Entries without an id are
// reported as not ok.
func TeamFromRaw(raw map[string]any) (Team, bool) {
	id := strings.TrimSpace(cast.ToString(raw["id"]))
	if id == "" {
		return Team{}, false
	}
	t := Team{
		ID:        id,
		FirstName: strings.TrimSpace(cast.ToString(raw["first_name"])),
		LastName:  strings.TrimSpace(cast.ToString(raw["last_name"])),
		Phone:     strings.TrimSpace(cast.ToString(raw["phone_number"])),
	}
	if photos, ok := raw["photos"].([]any); ok && len(photos) > 0 {
		if p, ok := photos[0].(map[string]any); ok {
			t.PhotoURL = cast.ToString(p["photo_url"])
		}
	}
	return t, true
}

// Source fetches the current roster from the backend.
type Source interface {
	FetchAvailableTeams(ctx context.Context) ([]Team, error)
}

const cacheKey = "teams"

// Cache fronts a Source with a short-lived in-memory copy.
type Cache struct {
	src    Source
	logger log.Logger
	ttl    time.Duration
	store  *cache.Cache
}

// NewCache wraps src. A ttl of zero disables caching.
func NewCache(src Source, ttl time.Duration, logger log.Logger) *Cache {
	if src == nil {
		panic(xerrors.New("roster source is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Cache{
		src:    src,
		logger: logger,
		ttl:    ttl,
		store:  cache.New(ttl, 2*ttl),
	}
}

// Teams returns the available teams. On a fetch failure the list is empty
// and the error is returned alongside it.
func (c *Cache) Teams(ctx context.Context) ([]Team, error) {
	if c.ttl > 0 {
		if v, ok := c.store.Get(cacheKey); ok {
			return clone(v.([]Team)), nil
		}
	}

	teams, err := c.src.FetchAvailableTeams(ctx)
	if err != nil {
		c.logger.Warn(ctx, "failed to fetch available teams", "err", err)
		return []Team{}, err
	}
	if teams == nil {
		teams = []Team{}
	}
	if c.ttl > 0 {
		c.store.SetDefault(cacheKey, clone(teams))
	}
	return teams, nil
}

// Invalidate drops the cached roster, e.g. after an assignment took a team.
func (c *Cache) Invalidate() {
	c.store.Delete(cacheKey)
}

func clone(in []Team) []Team {
	out := make([]Team, len(in))
	copy(out, in)
	return out
}
