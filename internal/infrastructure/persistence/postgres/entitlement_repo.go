package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITLEMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Entitlement is one row of the entitlements table.
type Entitlement struct {
	UserID    shared.UserID
	HasAccess bool
	Source    string
	GrantedAt *time.Time
	RevokedAt *time.Time
}

// EntitlementRepository reads and writes purchase state.
type EntitlementRepository struct {
	db  Querier
	now func() time.Time
}

// NewEntitlementRepository creates a repository over a pool or transaction.
func NewEntitlementRepository(db Querier) *EntitlementRepository {
	return &EntitlementRepository{db: db, now: time.Now}
}

// HasAccess reports whether the user holds an active entitlement.
// A missing row means no access.
func (r *EntitlementRepository) HasAccess(ctx context.Context, user shared.UserID) (bool, error) {
	var has bool
	err := r.db.QueryRow(ctx, `SELECT has_access FROM entitlements WHERE user_id = $1`, string(user)).Scan(&has)
	if err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("postgres: entitlement for %q: %w", user, err)
	}
	return has, nil
}

// Get returns the full entitlement row.
func (r *EntitlementRepository) Get(ctx context.Context, user shared.UserID) (*Entitlement, error) {
	e := &Entitlement{UserID: user}
	err := r.db.QueryRow(ctx, `
		SELECT has_access, source, granted_at, revoked_at
		FROM entitlements WHERE user_id = $1
	`, string(user)).Scan(&e.HasAccess, &e.Source, &e.GrantedAt, &e.RevokedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("entitlement", "Get", shared.ErrNotFound, "no entitlement for "+string(user))
		}
		return nil, fmt.Errorf("postgres: entitlement for %q: %w", user, err)
	}
	return e, nil
}

// Grant marks the user as having purchased access.
func (r *EntitlementRepository) Grant(ctx context.Context, user shared.UserID, source string) error {
	if !user.IsValid() {
		return shared.ErrInvalidUserID
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO entitlements (user_id, has_access, source, granted_at, revoked_at, updated_at)
		VALUES ($1, TRUE, $2, $3, NULL, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			has_access = TRUE,
			source = EXCLUDED.source,
			granted_at = EXCLUDED.granted_at,
			revoked_at = NULL,
			updated_at = EXCLUDED.updated_at
	`, string(user), source, r.now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: grant %q: %w", user, err)
	}
	return nil
}

// Revoke removes access. Revoking a user without a row is a no-op.
func (r *EntitlementRepository) Revoke(ctx context.Context, user shared.UserID) (bool, error) {
	if !user.IsValid() {
		return false, shared.ErrInvalidUserID
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE entitlements
		SET has_access = FALSE, revoked_at = $2, updated_at = $2
		WHERE user_id = $1 AND has_access
	`, string(user), r.now().UTC())
	if err != nil {
		return false, fmt.Errorf("postgres: revoke %q: %w", user, err)
	}
	return tag.RowsAffected() > 0, nil
}
