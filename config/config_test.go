package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, BackendMemory, cfg.Progress.Backend)
	assert.Equal(t, 2*time.Second, cfg.Progress.MediumTimeout)
	assert.Equal(t, "vh:", cfg.Redis.KeyPrefix)
	assert.Equal(t, "X-API-Key", cfg.Auth.APIKeyHeader)
	assert.True(t, cfg.Features.SequentialUnlock())
	assert.True(t, cfg.Features.HabitTracking())
	assert.False(t, cfg.Features.EntitlementLookup())
}

func TestLoad_FromEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("APP_TIMEZONE", "Europe/Berlin")
	t.Setenv("PROGRESS_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/vh")
	t.Setenv("PROGRESS_MEDIUM_TIMEOUT", "500ms")
	t.Setenv("ADMIN_API_KEY_HASHES", "$2a$10$abc, $2a$10$def")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://app.example.com,https://staging.example.com")
	t.Setenv("FEATURE_SEQUENTIAL_UNLOCK", "false")
	t.Setenv("SCHEDULING_URL", "https://cal.example.com/coach")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", cfg.App.Location.String())
	assert.Equal(t, BackendPostgres, cfg.Progress.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.Progress.MediumTimeout)
	assert.Equal(t, []string{"$2a$10$abc", "$2a$10$def"}, cfg.Auth.AdminAPIKeyHashes)
	assert.Len(t, cfg.HTTP.AllowedOrigins, 2)
	assert.False(t, cfg.Features.SequentialUnlock())
	assert.Equal(t, "https://cal.example.com/coach", cfg.Scheduling.URL)
}

func TestLoad_BuildsDatabaseURL(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "vh")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://vh:secret@db:5432/postgres?sslmode=require", cfg.Database.URL)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_PORT=9191\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	// godotenv sets variables for the whole process
	t.Cleanup(func() { os.Unsetenv("HTTP_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.HTTP.Port)
	assert.Equal(t, "warn", cfg.Observability.LogLevel, "real environment wins over .env")
}

func TestValidate_AggregatesErrors(t *testing.T) {
	isolateEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")
	t.Setenv("PROGRESS_BACKEND", "cassandra")
	t.Setenv("FEATURE_ENTITLEMENT_LOOKUP", "true")
	t.Setenv("ADMIN_API_KEY_HASHES", "plaintext")
	t.Setenv("HTTP_PORT", "70000")

	_, err := Load()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"APP_TIMEZONE",
		"HTTP_PORT",
		"PROGRESS_BACKEND",
		"FEATURE_ENTITLEMENT_LOOKUP",
		"JWT_SECRET is required in production",
		"bcrypt",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PROGRESS_BACKEND", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required for PROGRESS_BACKEND=postgres")
}

// ──────────────────────────────────────────────────────────────────────────────
// Feature flags
// ──────────────────────────────────────────────────────────────────────────────

func TestFeatureFlags_EnvKey(t *testing.T) {
	assert.Equal(t, "FEATURE_HABIT_TRACKING", featureNameToEnvKey(FeatureHabitTracking))
}

func TestFeatureFlags_IgnoresGarbage(t *testing.T) {
	t.Setenv("FEATURE_HABIT_TRACKING", "maybe")

	ff := LoadFeatureFlags()
	assert.True(t, ff.HabitTracking())
}

func TestFeatureFlags_SetEnabled(t *testing.T) {
	ff := LoadFeatureFlags()

	require.NoError(t, ff.SetEnabled(FeatureHabitTracking, false))
	assert.False(t, ff.HabitTracking())

	assert.ErrorIs(t, ff.SetEnabled("dark_mode", true), ErrFeatureNotFound)
	assert.False(t, ff.IsEnabled("dark_mode"))
}

func TestFeatureFlags_GetAllFeaturesSorted(t *testing.T) {
	all := LoadFeatureFlags().GetAllFeatures()
	require.Len(t, all, 3)
	assert.Equal(t, FeatureEntitlementLookup, all[0].Name)
	assert.Equal(t, FeatureHabitTracking, all[1].Name)
	assert.Equal(t, FeatureSequentialUnlock, all[2].Name)
}
