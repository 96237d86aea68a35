package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS MEDIUM
// ══════════════════════════════════════════════════════════════════════════════

// ProgressMedium stores progress records in the progress_entries table.
// It implements progress.Medium, progress.Deleter and progress.Pinger.
type ProgressMedium struct {
	db Querier
}

// NewProgressMedium creates a medium over a pool or transaction.
func NewProgressMedium(db Querier) *ProgressMedium {
	return &ProgressMedium{db: db}
}

// Get returns the stored value and whether the key exists.
func (m *ProgressMedium) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := m.db.QueryRow(ctx, `SELECT value FROM progress_entries WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if IsNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("postgres: get progress %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the value of a key.
func (m *ProgressMedium) Set(ctx context.Context, key, value string) error {
	k, err := progress.ParseKey(key)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO progress_entries (key, user_id, namespace, content_id, value, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`
	_, err = m.db.Exec(ctx, query, key, string(k.User()), string(k.Namespace()), string(k.Content()), value)
	if err != nil {
		return fmt.Errorf("postgres: set progress %q: %w", key, err)
	}
	return nil
}

// DeletePrefix deletes every key starting with prefix.
func (m *ProgressMedium) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, fmt.Errorf("postgres: empty prefix")
	}

	tag, err := m.db.Exec(ctx, `DELETE FROM progress_entries WHERE key LIKE $1 ESCAPE '\'`, escapeLike(prefix)+"%")
	if err != nil {
		return 0, fmt.Errorf("postgres: delete prefix %q: %w", prefix, err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks that the table is reachable.
func (m *ProgressMedium) Ping(ctx context.Context) error {
	var one int
	return m.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
