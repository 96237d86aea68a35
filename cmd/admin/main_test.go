package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellness-escape/vitality-hub/internal/infrastructure/identity"
	"github.com/wellness-escape/vitality-hub/internal/interface/http/handlers"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateCatalog_Embedded(t *testing.T) {
	out, err := execute(t, "validate-catalog")
	require.NoError(t, err)

	assert.Contains(t, out, "program vitality-reset")
	assert.Contains(t, out, "8 sessions")
	assert.Contains(t, out, "OK")
}

func TestValidateCatalog_RejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: broken\nweeks: []\n"), 0o600))

	_, err := execute(t, "validate-catalog", path)
	require.Error(t, err)
}

func TestValidateCatalog_MissingFile(t *testing.T) {
	_, err := execute(t, "validate-catalog", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open catalog")
}

func TestFeatures_ListsFlags(t *testing.T) {
	t.Setenv("FEATURE_HABIT_TRACKING", "false")

	out, err := execute(t, "features")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "habit_tracking")
	assert.Contains(t, lines[2], "false")
}

func TestHashAPIKey(t *testing.T) {
	const key = "a-long-enough-admin-key"

	out, err := execute(t, "hash-api-key", key)
	require.NoError(t, err)

	auth, err := handlers.NewAPIKeyAuth("X-API-Key", []string{strings.TrimSpace(out)})
	require.NoError(t, err)
	assert.True(t, auth.IsValid(key))
}

func TestHashAPIKey_TooShort(t *testing.T) {
	_, err := execute(t, "hash-api-key", "short")
	require.Error(t, err)
}

func TestMintToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-test-secret-test-secret")

	out, err := execute(t, "mint-token", "carol", "--access", "--name", "Carol")
	require.NoError(t, err)

	p, err := identity.NewJWTProvider("test-secret-test-secret-test-secret")
	require.NoError(t, err)

	principal := p.Principal(context.Background(), "Bearer "+strings.TrimSpace(out))
	assert.True(t, principal.Authenticated)
	assert.Equal(t, "carol", principal.UserID.String())
	assert.Equal(t, "Carol", principal.DisplayName)
	assert.True(t, principal.HasAccess)
	assert.False(t, principal.IsAdmin)
}

func TestMintToken_NeedsSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := execute(t, "mint-token", "carol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestResetProgress_MemoryBackend(t *testing.T) {
	t.Setenv("PROGRESS_BACKEND", "memory")

	_, err := execute(t, "reset-progress", "carol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROGRESS_BACKEND=memory")
}

func TestDatabaseCommands_NeedURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")

	for _, args := range [][]string{
		{"entitlement", "grant", "carol"},
		{"entitlement", "show", "carol"},
		{"migrate", "status"},
	} {
		_, err := execute(t, args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "DATABASE_URL is not set", args)
	}
}
