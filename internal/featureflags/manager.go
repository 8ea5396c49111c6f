// Package featureflags evaluates the FEATURE_FLAGS list for a viewer.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Flags read by the feed session.
const (
	// BatchedDetails routes a page's detail lookups through one batched query set.
	BatchedDetails = "batched_details"
	// LikeNotifications enables the notification written after a successful like.
	LikeNotifications = "like_notifications"
)

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "batched_details=on,like_notifications=25%"
type Manager struct {
	flags map[string]string
}

// NewManager creates a feature-flag manager from a comma-separated config string.
func NewManager(raw string) *Manager {
	out := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := normalize(parts[0])
		value := normalize(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

// Enabled returns whether a flag is enabled for a given viewer.
// Supported values:
// - on/true/1
// - off/false/0
// - N% (deterministic viewer rollout, e.g. 25%)
func (m *Manager) Enabled(name, viewerID string) bool {
	if m == nil {
		return false
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	if strings.HasSuffix(value, "%") {
		pct, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
		if err != nil || pct <= 0 {
			return false
		}
		if pct >= 100 {
			return true
		}
		if viewerID == "" {
			return false
		}
		return rolloutBucket(name, viewerID) < pct
	}

	return false
}

// EnabledOr is Enabled with a fallback for flags that are not configured at all.
func (m *Manager) EnabledOr(name, viewerID string, fallback bool) bool {
	if m == nil {
		return fallback
	}
	if _, ok := m.flags[normalize(name)]; !ok {
		return fallback
	}
	return m.Enabled(name, viewerID)
}

// Raw returns a copy of configured flags.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.flags))
	for k, v := range m.flags {
		out[k] = v
	}
	return out
}

// Snapshot returns evaluated flag status for one viewer.
func (m *Manager) Snapshot(viewerID string) map[string]bool {
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, viewerID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, viewerID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + viewerID))
	return int(h.Sum32() % 100)
}
