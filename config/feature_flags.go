package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags holds process-wide toggles read at startup.
// Values can be flipped at runtime by tests and the admin CLI.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	// FeatureSequentialUnlock turns on the progression gate. Off only for staging demos.
	FeatureSequentialUnlock = "sequential_unlock"

	// FeatureEntitlementLookup ORs the entitlements table into the token's access claim.
	FeatureEntitlementLookup = "entitlement_lookup"

	// FeatureHabitTracking enables daily habit check-ins and their dashboard widgets.
	FeatureHabitTracking = "habit_tracking"
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureSequentialUnlock] = &Feature{
		Name:        FeatureSequentialUnlock,
		Description: "Sessions unlock one at a time in program order",
		Enabled:     true,
	}

	ff.features[FeatureEntitlementLookup] = &Feature{
		Name:        FeatureEntitlementLookup,
		Description: "Check the entitlements table on every request",
		Enabled:     false,
	}

	ff.features[FeatureHabitTracking] = &Feature{
		Name:        FeatureHabitTracking,
		Description: "Daily habit check-ins and streaks",
		Enabled:     true,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false
// Example: FEATURE_SEQUENTIAL_UNLOCK=false
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "habit_tracking" -> "FEATURE_HABIT_TRACKING"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether a feature is on. Unknown features are off.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	return ok && feature.Enabled
}

// SetEnabled flips a feature.
func (ff *FeatureFlags) SetEnabled(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.Enabled = enabled
	return nil
}

// GetAllFeatures returns copies of all features sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		result = append(result, *f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// --- Convenience methods for common checks ---

// SequentialUnlock reports whether the progression gate is on.
func (ff *FeatureFlags) SequentialUnlock() bool {
	return ff.IsEnabled(FeatureSequentialUnlock)
}

// EntitlementLookup reports whether purchases are read from the database.
func (ff *FeatureFlags) EntitlementLookup() bool {
	return ff.IsEnabled(FeatureEntitlementLookup)
}

// HabitTracking reports whether habit check-ins are on.
func (ff *FeatureFlags) HabitTracking() bool {
	return ff.IsEnabled(FeatureHabitTracking)
}

// --- Errors ---

var ErrFeatureNotFound = &FeatureFlagError{Message: "feature not found"}

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
