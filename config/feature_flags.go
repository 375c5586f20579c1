package config

import (
	"errors"
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Flag names. Each one gates an optional pipeline stage.
const (
	FeatureWebhookReplayDedup  = "webhook.replay_dedup"  // skip pushes already audited for the same head commit
	FeatureProgressionBadges   = "progression.badges"    // evaluate and grant badges after XP
	FeatureRealtimeBroadcast   = "realtime.broadcast"    // relay domain events to observers
	FeatureRankingCache        = "ranking.cache"         // serve leaderboards from cache
	FeatureRankingChangeEvents = "ranking.change_events" // emit rank_changed after XP moves a user
)

var (
	ErrFeatureNotFound       = errors.New("feature not found")
	ErrInvalidRolloutPercent = errors.New("rollout percent must be 0-100")
)

// Feature is one toggle. Percent below 100 enables it for a stable subset of users.
type Feature struct {
	Name        string
	Description string
	Percent     int
}

// On reports whether the flag is on for anyone.
func (f Feature) On() bool { return f.Percent > 0 }

var defaultFeatures = []Feature{
	{FeatureWebhookReplayDedup, "Ignore duplicate deliveries of the same head commit", 100},
	{FeatureProgressionBadges, "Grant catalog badges after a graded push", 100},
	{FeatureRealtimeBroadcast, "Push progression events to connected observers", 100},
	{FeatureRankingCache, "Cache computed rankings per window", 100},
	{FeatureRankingChangeEvents, "Detect rank movement after XP is applied", 100},
}

// FeatureContext scopes an evaluation to one user.
type FeatureContext struct {
	UserID  string
	IsAdmin bool
}

// ForUser is shorthand for a non-admin context.
func ForUser(userID string) *FeatureContext {
	return &FeatureContext{UserID: userID}
}

// ══════════════════════════════════════════════════════════════════════════════
// FEATURE FLAGS
// ══════════════════════════════════════════════════════════════════════════════

// FeatureFlags holds runtime toggles. A nil *FeatureFlags reports every flag off.
type FeatureFlags struct {
	mu        sync.RWMutex
	features  map[string]Feature
	overrides map[string]map[string]bool // user -> flag -> on
}

// NewFeatureFlags returns the defaults without reading the environment.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:  make(map[string]Feature, len(defaultFeatures)),
		overrides: make(map[string]map[string]bool),
	}
	for _, f := range defaultFeatures {
		ff.features[f.Name] = f
	}
	return ff
}

// LoadFeatureFlags applies FEATURE_<NAME> variables on top of the defaults.
// A value is either a bool or a rollout percent:
//
//	FEATURE_PROGRESSION_BADGES=false
//	FEATURE_RANKING_CACHE=50
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	for name, f := range ff.features {
		raw := os.Getenv(envKey(name))
		if raw == "" {
			continue
		}
		if on, err := strconv.ParseBool(raw); err == nil {
			f.Percent = 0
			if on {
				f.Percent = 100
			}
		} else if p, err := strconv.Atoi(raw); err == nil && p >= 0 && p <= 100 {
			f.Percent = p
		}
		ff.features[name] = f
	}
	return ff
}

func envKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

// IsEnabled evaluates a flag. A nil context evaluates it globally; a user
// context applies overrides first, then the user's rollout bucket.
func (ff *FeatureFlags) IsEnabled(name string, fc *FeatureContext) bool {
	if ff == nil {
		return false
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[name]
	if !ok {
		return false
	}
	if fc == nil || fc.UserID == "" {
		return f.On()
	}
	if on, ok := ff.overrides[fc.UserID][name]; ok {
		return on
	}
	if fc.IsAdmin {
		return true
	}
	if f.Percent >= 100 {
		return true
	}
	return bucket(fc.UserID, name) < f.Percent
}

// bucket maps a user and flag to a stable value in [0, 100).
func bucket(userID, name string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}

// SetRolloutPercent changes how many users see a flag.
func (ff *FeatureFlags) SetRolloutPercent(name string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[name]
	if !ok {
		return ErrFeatureNotFound
	}
	f.Percent = percent
	ff.features[name] = f
	return nil
}

func (ff *FeatureFlags) EnableFeature(name string) error  { return ff.SetRolloutPercent(name, 100) }
func (ff *FeatureFlags) DisableFeature(name string) error { return ff.SetRolloutPercent(name, 0) }

// SetUserOverride pins a flag on or off for one user.
func (ff *FeatureFlags) SetUserOverride(userID, name string, on bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.overrides[userID] == nil {
		ff.overrides[userID] = make(map[string]bool)
	}
	ff.overrides[userID][name] = on
}

// ClearUserOverrides removes every override for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.overrides, userID)
}

// EnabledNames lists flags that are on for anyone, sorted. Logged at startup.
func (ff *FeatureFlags) EnabledNames() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	var names []string
	for name, f := range ff.features {
		if f.On() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
