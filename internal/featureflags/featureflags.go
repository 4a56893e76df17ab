// Package featureflags evaluates the flags declared in configuration for
// a user.
package featureflags

import (
	"context"
	"hash/fnv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/FACorreiaa/go-user-accounts/config"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

type Provider interface {
	FlagsFor(ctx context.Context, user *types.User) (map[string]bool, error)
}

var _ Provider = (*ConfigProvider)(nil)

// ConfigProvider answers from config. A flag is on for a user when it is
// enabled, lists the user's email, or the user falls in its rollout
// percentage. Results are cached per user.
type ConfigProvider struct {
	rules map[string]config.FlagRule
	cache *cache.Cache
}

func NewConfigProvider(cfg config.FeatureFlagsConfig) *ConfigProvider {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	rules := make(map[string]config.FlagRule, len(cfg.Flags))
	for name, rule := range cfg.Flags {
		emails := make([]string, len(rule.Emails))
		for i, e := range rule.Emails {
			emails[i] = strings.ToLower(strings.TrimSpace(e))
		}
		rule.Emails = emails
		rules[name] = rule
	}
	return &ConfigProvider{
		rules: rules,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (p *ConfigProvider) FlagsFor(_ context.Context, user *types.User) (map[string]bool, error) {
	key := user.ID.String()
	if cached, found := p.cache.Get(key); found {
		return copyFlags(cached.(map[string]bool)), nil
	}

	flags := make(map[string]bool, len(p.rules))
	for name, rule := range p.rules {
		flags[name] = evaluate(name, rule, user)
	}
	p.cache.Set(key, flags, cache.DefaultExpiration)
	return copyFlags(flags), nil
}

func evaluate(name string, rule config.FlagRule, user *types.User) bool {
	if rule.Enabled {
		return true
	}
	email := strings.ToLower(user.Email)
	for _, e := range rule.Emails {
		if e == email {
			return true
		}
	}
	return rule.Percentage > 0 && bucket(name, user.ID.String()) < uint32(rule.Percentage)
}

// bucket maps a (flag, user) pair to a stable value in [0, 100).
func bucket(flag, userID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(flag))
	_, _ = h.Write([]byte(userID))
	return h.Sum32() % 100
}

func copyFlags(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
